package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/extractor/pdf"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/extractor/plaintext"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/extractor/xlsx"
)

// Dispatcher routes extraction by source file extension. Unknown
// extensions are treated as plain text.
type Dispatcher struct {
	plaintext ports.TextExtractor
	pdf       ports.TextExtractor
	xlsx      ports.TextExtractor
}

func NewDispatcher(storage ports.ObjectStorage) *Dispatcher {
	return &Dispatcher{
		plaintext: plaintext.NewExtractor(storage),
		pdf:       pdf.NewExtractor(storage),
		xlsx:      xlsx.NewExtractor(storage),
	}
}

func (d *Dispatcher) Extract(ctx context.Context, t *domain.Transcript) (string, error) {
	switch strings.ToLower(filepath.Ext(t.StoragePath)) {
	case ".pdf":
		return d.pdf.Extract(ctx, t)
	case ".xlsx":
		return d.xlsx.Extract(ctx, t)
	default:
		return d.plaintext.Extract(ctx, t)
	}
}

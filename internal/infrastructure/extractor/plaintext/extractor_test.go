package plaintext

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

type memoryStorage struct {
	files map[string]string
}

func (m *memoryStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.files[key] = string(raw)
	return nil
}

func (m *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.files[key])), nil
}

func TestExtractTrimsWhitespace(t *testing.T) {
	storage := &memoryStorage{files: map[string]string{
		"t1_notes.txt": "\n\n  обсуждение релиза  \n",
	}}
	extractor := NewExtractor(storage)

	text, err := extractor.Extract(context.Background(), &domain.Transcript{StoragePath: "t1_notes.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "обсуждение релиза" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
}

func TestExtractRejectsBinaryContent(t *testing.T) {
	storage := &memoryStorage{files: map[string]string{
		"t1_blob.bin": string([]byte{0xff, 0xfe, 0x00, 0x80}),
	}}
	extractor := NewExtractor(storage)

	_, err := extractor.Extract(context.Background(), &domain.Transcript{StoragePath: "t1_blob.bin"})
	if err == nil || !strings.Contains(err.Error(), "utf-8") {
		t.Fatalf("expected utf-8 validation error, got %v", err)
	}
}

package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

// Ingestor registers a new transcript: save the source file, create the
// registry row and enqueue the indexing job.
type Ingestor struct {
	store   ports.TranscriptStore
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestor(
	store ports.TranscriptStore,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *Ingestor {
	return &Ingestor{
		store:   store,
		storage: storage,
		queue:   queue,
	}
}

func (uc *Ingestor) Upload(
	ctx context.Context,
	title, language, filename string,
	body io.Reader,
) (*domain.Transcript, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	transcript := &domain.Transcript{
		ID:          id,
		Title:       title,
		Language:    language,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.store.Create(ctx, transcript); err != nil {
		return nil, fmt.Errorf("create transcript record: %w", err)
	}

	if err := uc.queue.PublishTranscriptIndex(ctx, transcript.ID); err != nil {
		return nil, fmt.Errorf("publish indexing job: %w", err)
	}

	return transcript, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "transcript.bin"
	}
	return base
}

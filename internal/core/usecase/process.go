package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

// Processor drives indexing for a stored transcript: mark it indexing,
// obtain its text, run the indexing pipeline with persisted progress and
// record the terminal status.
type Processor struct {
	store     ports.TranscriptStore
	extractor ports.TextExtractor
	indexer   ports.TranscriptIndexer
	log       *slog.Logger
}

func NewProcessor(
	store ports.TranscriptStore,
	extractor ports.TextExtractor,
	indexer ports.TranscriptIndexer,
	log *slog.Logger,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		store:     store,
		extractor: extractor,
		indexer:   indexer,
		log:       log,
	}
}

func (p *Processor) ProcessByID(ctx context.Context, transcriptID string) error {
	if err := p.store.UpdateStatus(ctx, transcriptID, domain.StatusIndexing, ""); err != nil {
		return fmt.Errorf("set status=indexing: %w", err)
	}

	indexed, err := p.runPipeline(ctx, transcriptID)
	if err != nil {
		if failErr := p.store.UpdateStatus(ctx, transcriptID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := p.store.UpdateIndexState(ctx, transcriptID, 1.0, indexed); err != nil {
		return fmt.Errorf("persist index state: %w", err)
	}
	if err := p.store.UpdateStatus(ctx, transcriptID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (p *Processor) runPipeline(ctx context.Context, transcriptID string) (int, error) {
	transcript, err := p.store.GetByID(ctx, transcriptID)
	if err != nil {
		return 0, fmt.Errorf("fetch transcript by id: %w", err)
	}

	text := transcript.Text
	if text == "" {
		text, err = p.extractor.Extract(ctx, transcript)
		if err != nil {
			return 0, fmt.Errorf("extract text: %w", err)
		}
	}
	if text == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty transcript text"))
	}

	metadata := map[string]any{}
	if transcript.Title != "" {
		metadata["title"] = transcript.Title
	}
	if transcript.Language != "" {
		metadata["language"] = transcript.Language
	}

	// Progress persistence is best effort: a failed write must not fail
	// the indexing run.
	onProgress := func(progress float64) {
		if err := p.store.UpdateIndexState(ctx, transcriptID, progress, 0); err != nil {
			p.log.Warn("could not persist index progress", "transcript_id", transcriptID, "error", err)
		}
	}

	indexed, err := p.indexer.IndexDocument(ctx, transcriptID, text, metadata, onProgress)
	if err != nil {
		return 0, fmt.Errorf("index transcript: %w", err)
	}
	return indexed, nil
}

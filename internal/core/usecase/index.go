package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

const embedBatchSize = 64

// Indexer runs the indexing pipeline for one transcript: split, embed,
// replace the transcript's points in the vector index, then refresh the
// lexical index. When embeddings or the vector store are unavailable the
// pipeline completes with zero chunks instead of failing the transcript.
type Indexer struct {
	chunker  ports.Chunker
	embedder ports.Embedder
	vector   ports.VectorIndex
	lexical  ports.LexicalIndex
	log      *slog.Logger
}

func NewIndexer(
	chunker ports.Chunker,
	embedder ports.Embedder,
	vector ports.VectorIndex,
	lexical ports.LexicalIndex,
	log *slog.Logger,
) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		chunker:  chunker,
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		log:      log,
	}
}

// progressReporter guards the callback against regressions: reported
// progress never decreases within one indexing run.
type progressReporter struct {
	callback func(float64)
	last     float64
}

func (p *progressReporter) report(progress float64) {
	if p.callback == nil {
		return
	}
	if progress < p.last {
		return
	}
	if progress > 1.0 {
		progress = 1.0
	}
	p.last = progress
	p.callback(progress)
}

// IndexDocument indexes text under transcriptID and returns the number
// of chunks written. The progress callback, when set, receives a
// non-decreasing sequence ending at 1.0 on every successful return.
func (ix *Indexer) IndexDocument(
	ctx context.Context,
	transcriptID string,
	text string,
	metadata map[string]any,
	onProgress func(float64),
) (int, error) {
	progress := &progressReporter{callback: onProgress}
	progress.report(0.05)

	chunkTexts := ix.chunker.Split(text)
	if len(chunkTexts) == 0 {
		ix.log.Warn("no chunks produced, text may be too short", "transcript_id", transcriptID)
		progress.report(1.0)
		return 0, nil
	}
	ix.log.Info("transcript split into chunks", "transcript_id", transcriptID, "chunks", len(chunkTexts))
	progress.report(0.15)

	embedded, err := ix.embedChunks(ctx, transcriptID, chunkTexts, metadata, progress)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmbeddingsUnavailable) {
			ix.log.Warn("embeddings unavailable, skipping indexing", "transcript_id", transcriptID, "error", err)
			progress.report(1.0)
			return 0, nil
		}
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	progress.report(0.4)

	if err := ix.vector.EnsureCollection(ctx, ix.embedder.Dimension()); err != nil {
		if domain.IsKind(err, domain.ErrVectorStoreUnavailable) {
			ix.log.Warn("vector store unavailable, skipping indexing", "transcript_id", transcriptID, "error", err)
			progress.report(1.0)
			return 0, nil
		}
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	// Replace, not append: stale points from a previous indexing run
	// must not survive a reindex. A delete failure is not fatal.
	if err := ix.vector.DeleteByTranscript(ctx, transcriptID); err != nil {
		ix.log.Warn("could not delete existing chunks before reindexing", "transcript_id", transcriptID, "error", err)
	}
	progress.report(0.5)

	if err := ix.upsertChunks(ctx, embedded, progress); err != nil {
		if domain.IsKind(err, domain.ErrVectorStoreUnavailable) {
			ix.log.Warn("vector store unavailable, skipping indexing", "transcript_id", transcriptID, "error", err)
			progress.report(1.0)
			return 0, nil
		}
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}
	progress.report(0.9)

	chunks := make([]domain.Chunk, len(embedded))
	for i, e := range embedded {
		chunks[i] = e.Chunk
	}
	ix.lexical.Add(chunks)

	ix.log.Info("transcript indexed", "transcript_id", transcriptID, "chunks", len(embedded))
	progress.report(1.0)
	return len(embedded), nil
}

// embedChunks embeds in batches, walking progress from 0.15 toward 0.4.
func (ix *Indexer) embedChunks(
	ctx context.Context,
	transcriptID string,
	chunkTexts []string,
	metadata map[string]any,
	progress *progressReporter,
) ([]domain.EmbeddedChunk, error) {
	embedded := make([]domain.EmbeddedChunk, 0, len(chunkTexts))
	for start := 0; start < len(chunkTexts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunkTexts) {
			end = len(chunkTexts)
		}
		batch := chunkTexts[start:end]

		vectors, err := ix.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, vector := range vectors {
			embedded = append(embedded, domain.EmbeddedChunk{
				Chunk: domain.Chunk{
					TranscriptID: transcriptID,
					ChunkIndex:   start + i,
					Text:         batch[i],
					Metadata:     metadata,
				},
				Vector: vector,
			})
		}
		progress.report(0.15 + 0.25*float64(end)/float64(len(chunkTexts)))
	}
	return embedded, nil
}

// upsertChunks writes in batches, walking progress from 0.5 toward 0.9.
func (ix *Indexer) upsertChunks(ctx context.Context, embedded []domain.EmbeddedChunk, progress *progressReporter) error {
	const upsertBatchSize = 128
	for start := 0; start < len(embedded); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(embedded) {
			end = len(embedded)
		}
		if err := ix.vector.Upsert(ctx, embedded[start:end]); err != nil {
			return err
		}
		progress.report(0.5 + 0.4*float64(end)/float64(len(embedded)))
	}
	return nil
}

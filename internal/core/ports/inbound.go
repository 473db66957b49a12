package ports

import (
	"context"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

// TranscriptIndexer drives chunk -> embed -> upsert -> lexical update
// for one document. onProgress, when non-nil, receives monotonically
// non-decreasing values in [0,1] with a final 1.0 on success. A return
// of (0, nil) means nothing was indexed (empty text or embeddings
// unavailable), not a failure.
type TranscriptIndexer interface {
	IndexDocument(ctx context.Context, transcriptID, text string, metadata map[string]any, onProgress func(float64)) (int, error)
}

// QuestionAnswerer runs one retrieval-augmented question-answering turn.
type QuestionAnswerer interface {
	Answer(ctx context.Context, req domain.RetrievalRequest) (*domain.QAResult, error)
}

// TranscriptProcessor loads a transcript by ID and (re)indexes it,
// persisting status and progress. Consumed by the indexing worker.
type TranscriptProcessor interface {
	ProcessByID(ctx context.Context, transcriptID string) error
}

package ports

import (
	"context"
	"io"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

// Embedder builds dense vectors for chunks and query text. Dimension
// reports the vector size of the currently active provider; it may
// change once per process when the provider falls back to a local model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorIndex is a collection in the external vector store keyed by
// (transcript_id, chunk_index).
type VectorIndex interface {
	// EnsureCollection creates the collection if absent and recreates it
	// (destructively) if the recorded dimension differs from dim.
	EnsureCollection(ctx context.Context, dim int) error
	// Upsert performs one automatic ensure+recreate+retry cycle on a
	// detected dimension-mismatch error before propagating it.
	Upsert(ctx context.Context, points []domain.EmbeddedChunk) error
	// Search filters by transcript id set (transcript_id IN {...}) when
	// transcriptIDs is non-empty.
	Search(ctx context.Context, vector []float32, transcriptIDs []string, limit int) ([]domain.ScoredResult, error)
	DeleteByTranscript(ctx context.Context, transcriptID string) error
	// ScrollAll pages through every point; used to rebuild the lexical
	// index at startup.
	ScrollAll(ctx context.Context) ([]domain.Chunk, error)
}

// LexicalIndex is the in-memory BM25 index over all indexed chunk texts.
// Implementations must swap state atomically so concurrent readers never
// observe a partially rebuilt index.
type LexicalIndex interface {
	Rebuild(chunks []domain.Chunk)
	Add(chunks []domain.Chunk)
	Search(query string, transcriptIDs []string, limit int) []domain.ScoredResult
}

// Chunker splits document text into overlapping windows.
type Chunker interface {
	Split(text string) []string
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatCompleter issues one LLM chat completion and returns the trimmed
// assistant message content.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// CrossEncoder scores (query, passage) pairs with a joint relevance
// model. Available reports whether the model loaded; callers fall back
// to LLM reranking when it did not.
type CrossEncoder interface {
	Available(ctx context.Context) bool
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
	ModelName() string
}

// TranscriptStore persists transcript registry state.
type TranscriptStore interface {
	Create(ctx context.Context, t *domain.Transcript) error
	GetByID(ctx context.Context, id string) (*domain.Transcript, error)
	UpdateStatus(ctx context.Context, id string, status domain.TranscriptStatus, errMessage string) error
	UpdateIndexState(ctx context.Context, id string, progress float64, indexedChunks int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor extracts plain text from a stored source file.
type TextExtractor interface {
	Extract(ctx context.Context, t *domain.Transcript) (string, error)
}

// MessageQueue publishes/consumes indexing jobs.
type MessageQueue interface {
	PublishTranscriptIndex(ctx context.Context, transcriptID string) error
	SubscribeTranscriptIndex(ctx context.Context, handler func(context.Context, string) error) error
}

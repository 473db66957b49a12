package domain

import "time"

type TranscriptStatus string

const (
	StatusUploaded TranscriptStatus = "uploaded"
	StatusIndexing TranscriptStatus = "indexing"
	StatusReady    TranscriptStatus = "ready"
	StatusFailed   TranscriptStatus = "failed"
)

// Transcript is the registry record for one source document. Text is
// populated either directly (already-transcribed content) or lazily via
// extraction from the stored source file.
type Transcript struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Language      string           `json:"language,omitempty"`
	Text          string           `json:"text,omitempty"`
	StoragePath   string           `json:"storage_path,omitempty"`
	Status        TranscriptStatus `json:"status"`
	IndexedChunks int              `json:"indexed_chunks"`
	IndexProgress float64          `json:"index_progress"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

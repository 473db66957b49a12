package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTranscriptNotFound = errors.New("transcript not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTemporary          = errors.New("temporary failure")

	// Infrastructure unavailability at the edges. Retrieval and indexing
	// degrade to empty results instead of failing the caller.
	ErrEmbeddingsUnavailable  = errors.New("embeddings unavailable")
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	ErrDimensionMismatch      = errors.New("vector dimension mismatch")

	// Fatal for a single question-answering turn.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrSynthesisFailed      = errors.New("answer synthesis failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

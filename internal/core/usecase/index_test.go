package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

func TestIndexDocumentReportsMonotonicProgress(t *testing.T) {
	vector := &fakeVectorIndex{}
	lexical := &fakeLexicalIndex{}
	indexer := NewIndexer(&fakeChunker{chunks: []string{"one", "two", "three"}}, &fakeEmbedder{}, vector, lexical, nil)

	var reported []float64
	indexed, err := indexer.IndexDocument(context.Background(), "t1", "text", nil, func(p float64) {
		reported = append(reported, p)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed != 3 {
		t.Fatalf("expected 3 indexed chunks, got %d", indexed)
	}

	if len(reported) == 0 {
		t.Fatalf("expected progress callbacks")
	}
	if reported[0] != 0.05 {
		t.Fatalf("expected first progress 0.05, got %f", reported[0])
	}
	if reported[len(reported)-1] != 1.0 {
		t.Fatalf("expected final progress 1.0, got %f", reported[len(reported)-1])
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] < reported[i-1] {
			t.Fatalf("progress regressed at %d: %v", i, reported)
		}
	}

	if len(lexical.added) != 3 {
		t.Fatalf("expected 3 chunks added to lexical index, got %d", len(lexical.added))
	}
	if lexical.added[2].ChunkIndex != 2 {
		t.Fatalf("expected sequential chunk indices, got %+v", lexical.added)
	}
}

func TestIndexDocumentEmptyTextCompletesWithZero(t *testing.T) {
	indexer := NewIndexer(&fakeChunker{}, &fakeEmbedder{}, &fakeVectorIndex{}, &fakeLexicalIndex{}, nil)

	var last float64
	indexed, err := indexer.IndexDocument(context.Background(), "t1", "", nil, func(p float64) { last = p })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed != 0 {
		t.Fatalf("expected 0 chunks, got %d", indexed)
	}
	if last != 1.0 {
		t.Fatalf("expected final progress 1.0, got %f", last)
	}
}

func TestIndexDocumentEmbeddingsUnavailableCompletesWithZero(t *testing.T) {
	embedder := &fakeEmbedder{embedErr: domain.WrapError(domain.ErrEmbeddingsUnavailable, "embed", errors.New("down"))}
	vector := &fakeVectorIndex{}
	indexer := NewIndexer(&fakeChunker{chunks: []string{"one"}}, embedder, vector, &fakeLexicalIndex{}, nil)

	var last float64
	indexed, err := indexer.IndexDocument(context.Background(), "t1", "text", nil, func(p float64) { last = p })
	if err != nil {
		t.Fatalf("expected soft completion, got error: %v", err)
	}
	if indexed != 0 {
		t.Fatalf("expected 0 chunks, got %d", indexed)
	}
	if last != 1.0 {
		t.Fatalf("expected final progress 1.0, got %f", last)
	}
	if len(vector.upserted) != 0 {
		t.Fatalf("expected no upserts, got %d", len(vector.upserted))
	}
}

func TestIndexDocumentDeletesBeforeUpsert(t *testing.T) {
	vector := &fakeVectorIndex{}
	indexer := NewIndexer(&fakeChunker{chunks: []string{"one", "two"}}, &fakeEmbedder{}, vector, &fakeLexicalIndex{}, nil)

	if _, err := indexer.IndexDocument(context.Background(), "t1", "text", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deleteAt, upsertAt := -1, -1
	for i, op := range vector.ops {
		switch op {
		case "delete":
			if deleteAt == -1 {
				deleteAt = i
			}
		case "upsert":
			if upsertAt == -1 {
				upsertAt = i
			}
		}
	}
	if deleteAt == -1 || upsertAt == -1 {
		t.Fatalf("expected both delete and upsert, got ops %v", vector.ops)
	}
	if deleteAt > upsertAt {
		t.Fatalf("expected delete before upsert, got ops %v", vector.ops)
	}
	if len(vector.deletedIDs) != 1 || vector.deletedIDs[0] != "t1" {
		t.Fatalf("expected delete for t1, got %v", vector.deletedIDs)
	}
}

func TestIndexDocumentUpsertErrorPropagates(t *testing.T) {
	vector := &fakeVectorIndex{upsertErr: errors.New("write failed")}
	indexer := NewIndexer(&fakeChunker{chunks: []string{"one"}}, &fakeEmbedder{}, vector, &fakeLexicalIndex{}, nil)

	if _, err := indexer.IndexDocument(context.Background(), "t1", "text", nil, nil); err == nil {
		t.Fatalf("expected upsert error to propagate")
	}
}

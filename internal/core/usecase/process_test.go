package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

func TestProcessByIDHappyPathReachesReady(t *testing.T) {
	store := newFakeStore(&domain.Transcript{ID: "t1", Title: "standup", Text: "готовый текст"})
	indexer := &fakeIndexer{indexed: 7}
	processor := NewProcessor(store, &fakeExtractor{}, indexer, nil)

	if err := processor.ProcessByID(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStatuses := []domain.TranscriptStatus{domain.StatusIndexing, domain.StatusReady}
	if len(store.statuses) != 2 || store.statuses[0] != wantStatuses[0] || store.statuses[1] != wantStatuses[1] {
		t.Fatalf("expected status transitions %v, got %v", wantStatuses, store.statuses)
	}
	// The terminal write persists progress 1.0 with the final chunk count.
	last := len(store.progress) - 1
	if store.progress[last] != 1.0 || store.chunkCounts[last] != 7 {
		t.Fatalf("expected final state (1.0, 7), got (%f, %d)", store.progress[last], store.chunkCounts[last])
	}
}

func TestProcessByIDExtractsWhenTextMissing(t *testing.T) {
	store := newFakeStore(&domain.Transcript{ID: "t1", StoragePath: "t1_a.pdf"})
	indexer := &fakeIndexer{indexed: 3}
	processor := NewProcessor(store, &fakeExtractor{text: "извлечённый текст"}, indexer, nil)

	if err := processor.ProcessByID(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(indexer.texts) != 1 || indexer.texts[0] != "извлечённый текст" {
		t.Fatalf("expected extracted text to reach the indexer, got %v", indexer.texts)
	}
}

func TestProcessByIDEmptyTextFails(t *testing.T) {
	store := newFakeStore(&domain.Transcript{ID: "t1"})
	processor := NewProcessor(store, &fakeExtractor{}, &fakeIndexer{}, nil)

	err := processor.ProcessByID(context.Background(), "t1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if store.statuses[len(store.statuses)-1] != domain.StatusFailed {
		t.Fatalf("expected failed terminal status, got %v", store.statuses)
	}
	if store.lastError == "" {
		t.Fatalf("expected persisted error message")
	}
}

func TestProcessByIDIndexerErrorMarksFailed(t *testing.T) {
	store := newFakeStore(&domain.Transcript{ID: "t1", Text: "текст"})
	indexer := &fakeIndexer{err: errors.New("qdrant write refused")}
	processor := NewProcessor(store, &fakeExtractor{}, indexer, nil)

	err := processor.ProcessByID(context.Background(), "t1")
	if err == nil {
		t.Fatalf("expected indexing error")
	}
	if store.statuses[len(store.statuses)-1] != domain.StatusFailed {
		t.Fatalf("expected failed status, got %v", store.statuses)
	}
	if !strings.Contains(store.lastError, "qdrant write refused") {
		t.Fatalf("expected cause persisted, got %q", store.lastError)
	}
}

func TestProcessByIDMissingTranscriptMarksFailed(t *testing.T) {
	store := newFakeStore()
	processor := NewProcessor(store, &fakeExtractor{}, &fakeIndexer{}, nil)

	err := processor.ProcessByID(context.Background(), "absent")
	if !domain.IsKind(err, domain.ErrTranscriptNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if store.statuses[len(store.statuses)-1] != domain.StatusFailed {
		t.Fatalf("expected failed status, got %v", store.statuses)
	}
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

func TestUploadSavesCreatesAndPublishes(t *testing.T) {
	store := newFakeStore()
	storage := &fakeStorage{}
	queue := &fakeQueue{}
	ingestor := NewIngestor(store, storage, queue)

	transcript, err := ingestor.Upload(context.Background(), "Планёрка", "ru", "запись встречи.txt", strings.NewReader("содержимое"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript.ID == "" {
		t.Fatalf("expected generated id")
	}
	if transcript.Status != domain.StatusUploaded {
		t.Fatalf("expected uploaded status, got %s", transcript.Status)
	}
	if !strings.HasPrefix(transcript.StoragePath, transcript.ID+"_") {
		t.Fatalf("expected id-prefixed storage key, got %q", transcript.StoragePath)
	}
	if content := storage.saved[transcript.StoragePath]; content != "содержимое" {
		t.Fatalf("expected file saved under storage key, got %q", content)
	}
	if len(queue.published) != 1 || queue.published[0] != transcript.ID {
		t.Fatalf("expected indexing job published, got %v", queue.published)
	}
	if _, ok := store.transcripts[transcript.ID]; !ok {
		t.Fatalf("expected registry row created")
	}
}

func TestUploadSanitizesFilename(t *testing.T) {
	storage := &fakeStorage{}
	ingestor := NewIngestor(newFakeStore(), storage, &fakeQueue{})

	transcript, err := ingestor.Upload(context.Background(), "t", "", "../папка/отчёт 2026.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key := transcript.StoragePath
	if strings.Contains(key, "/") || strings.Contains(key, "..") || strings.Contains(key, " ") {
		t.Fatalf("expected sanitized key, got %q", key)
	}
	if !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("expected extension preserved, got %q", key)
	}
}

func TestUploadPublishFailurePropagates(t *testing.T) {
	queue := &fakeQueue{err: errors.New("nats down")}
	ingestor := NewIngestor(newFakeStore(), &fakeStorage{}, queue)

	_, err := ingestor.Upload(context.Background(), "t", "", "a.txt", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "publish indexing job") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

type fakeEmbedder struct {
	dim      int
	embedErr error
	calls    int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dimension())
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) Dimension() int { return f.dimension() }

func (f *fakeEmbedder) dimension() int {
	if f.dim <= 0 {
		return 4
	}
	return f.dim
}

type fakeVectorIndex struct {
	mu         sync.Mutex
	results    []domain.ScoredResult
	searchErr  error
	upsertErr  error
	ops        []string
	upserted   []domain.EmbeddedChunk
	deletedIDs []string
}

func (f *fakeVectorIndex) EnsureCollection(context.Context, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "ensure")
	return nil
}

func (f *fakeVectorIndex) Upsert(_ context.Context, points []domain.EmbeddedChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.ops = append(f.ops, "upsert")
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeVectorIndex) Search(context.Context, []float32, []string, int) ([]domain.ScoredResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeVectorIndex) DeleteByTranscript(_ context.Context, transcriptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete")
	f.deletedIDs = append(f.deletedIDs, transcriptID)
	return nil
}

func (f *fakeVectorIndex) ScrollAll(context.Context) ([]domain.Chunk, error) {
	return nil, nil
}

type fakeLexicalIndex struct {
	mu      sync.Mutex
	results []domain.ScoredResult
	added   []domain.Chunk
}

func (f *fakeLexicalIndex) Rebuild([]domain.Chunk) {}

func (f *fakeLexicalIndex) Add(chunks []domain.Chunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, chunks...)
}

func (f *fakeLexicalIndex) Search(string, []string, int) []domain.ScoredResult {
	return f.results
}

// fakeLLM replays canned responses in call order; after the list is
// exhausted the last response repeats.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []ports.ChatRequest
}

func (f *fakeLLM) Complete(_ context.Context, req ports.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return "", nil
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// stagedLLM fails its first N calls, then answers with a fixed string.
type stagedLLM struct {
	mu       sync.Mutex
	failures int
	answer   string
	calls    int
}

func (s *stagedLLM) Complete(context.Context, ports.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return "", errors.New("llm temporarily down")
	}
	return s.answer, nil
}

type fakeCrossEncoder struct {
	available bool
	scores    []float64
	err       error
}

func (f *fakeCrossEncoder) Available(context.Context) bool { return f.available }

func (f *fakeCrossEncoder) Score(context.Context, string, []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func (f *fakeCrossEncoder) ModelName() string { return "fake-cross-encoder" }

type fakeChunker struct {
	chunks []string
}

func (f *fakeChunker) Split(string) []string { return f.chunks }

// fakeStore records mutations so tests can assert the status lifecycle.
type fakeStore struct {
	mu          sync.Mutex
	transcripts map[string]*domain.Transcript
	statuses    []domain.TranscriptStatus
	lastError   string
	progress    []float64
	chunkCounts []int
	getErr      error
	createErr   error
}

func newFakeStore(transcripts ...*domain.Transcript) *fakeStore {
	store := &fakeStore{transcripts: make(map[string]*domain.Transcript)}
	for _, t := range transcripts {
		store.transcripts[t.ID] = t
	}
	return store
}

func (f *fakeStore) Create(_ context.Context, t *domain.Transcript) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.transcripts[t.ID] = t
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*domain.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.transcripts[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrTranscriptNotFound, "fetch transcript", errors.New(id))
	}
	return t, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, _ string, status domain.TranscriptStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	f.lastError = errMessage
	return nil
}

func (f *fakeStore) UpdateIndexState(_ context.Context, _ string, progress float64, indexedChunks int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	f.chunkCounts = append(f.chunkCounts, indexedChunks)
	return nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, *domain.Transcript) (string, error) {
	return f.text, f.err
}

type fakeIndexer struct {
	indexed int
	err     error
	texts   []string
}

func (f *fakeIndexer) IndexDocument(_ context.Context, _ string, text string, _ map[string]any, onProgress func(float64)) (int, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return 0, f.err
	}
	if onProgress != nil {
		onProgress(0.5)
	}
	return f.indexed, nil
}

type fakeStorage struct {
	mu    sync.Mutex
	saved map[string]string
}

func (f *fakeStorage) Save(_ context.Context, key string, data io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *fakeStorage) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type fakeQueue struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakeQueue) PublishTranscriptIndex(_ context.Context, transcriptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, transcriptID)
	return nil
}

func (f *fakeQueue) SubscribeTranscriptIndex(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

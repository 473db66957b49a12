package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

func TestSearchBuildsTranscriptIDFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode search body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"score": 0.92,
					"payload": map[string]any{
						"transcript_id": "t1",
						"chunk_index":   3,
						"chunk_text":    "решение о запуске",
						"metadata":      map[string]any{"title": "standup"},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	results, err := client.Search(context.Background(), []float32{0.1, 0.2}, []string{"t1", "t2"}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.TranscriptID != "t1" || got.ChunkIndex != 3 || got.Score != 0.92 {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Origin != domain.OriginVector {
		t.Fatalf("expected vector origin, got %s", got.Origin)
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected filter in search body, got %v", captured)
	}
	must, ok := filter["must"].([]any)
	if !ok || len(must) != 1 {
		t.Fatalf("expected single must condition, got %v", filter)
	}
	condition := must[0].(map[string]any)
	if condition["key"] != "transcript_id" {
		t.Fatalf("expected transcript_id key, got %v", condition)
	}
	match := condition["match"].(map[string]any)
	anyIDs, ok := match["any"].([]any)
	if !ok || len(anyIDs) != 2 {
		t.Fatalf("expected match.any with 2 ids, got %v", match)
	}
}

func TestSearchOmitsFilterWithoutIDs(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": []any{}})
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	if _, err := client.Search(context.Background(), []float32{0.1}, nil, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := captured["filter"]; ok {
		t.Fatalf("expected no filter for empty id set, got %v", captured)
	}
}

func TestSearchRetriesOnceOnNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"status":{"error":"collection not found"}}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": []any{}})
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	if _, err := client.Search(context.Background(), []float32{0.1}, nil, 5); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 search calls, got %d", calls.Load())
	}
}

func TestUpsertRecreatesCollectionOnDimensionMismatch(t *testing.T) {
	var upserts, creates, drops atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/chunks":
			http.Error(w, `{"status":{"error":"not found"}}`, http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			creates.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
		case r.Method == http.MethodDelete && r.URL.Path == "/collections/chunks":
			drops.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			if upserts.Add(1) == 1 {
				http.Error(w, `{"status":{"error":"Wrong input: vector dimension error: expected dim: 1536, got 384"}}`, http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"status": "completed"}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	points := []domain.EmbeddedChunk{{
		Chunk:  domain.Chunk{TranscriptID: "t1", ChunkIndex: 0, Text: "chunk"},
		Vector: []float32{0.1, 0.2, 0.3},
	}}
	if err := client.Upsert(context.Background(), points); err != nil {
		t.Fatalf("expected recreate+retry to succeed, got %v", err)
	}
	if upserts.Load() != 2 {
		t.Fatalf("expected 2 upsert attempts, got %d", upserts.Load())
	}
	if creates.Load() != 2 {
		t.Fatalf("expected initial create plus recreate, got %d", creates.Load())
	}
	if drops.Load() != 1 {
		t.Fatalf("expected 1 drop during recreate, got %d", drops.Load())
	}
}

func TestEnsureCollectionRecreatesOnDimensionChange(t *testing.T) {
	var drops, creates atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/chunks":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{
					"config": map[string]any{
						"params": map[string]any{
							"vectors": map[string]any{"size": 768},
						},
					},
				},
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/collections/chunks":
			drops.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			creates.Add(1)
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			vectors := body["vectors"].(map[string]any)
			if size := vectors["size"].(float64); size != 1536 {
				t.Errorf("expected new dimension 1536, got %v", size)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	if err := client.EnsureCollection(context.Background(), 1536); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drops.Load() != 1 || creates.Load() != 1 {
		t.Fatalf("expected drop+create, got drops=%d creates=%d", drops.Load(), creates.Load())
	}
}

func TestScrollAllPaginates(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/points/scroll") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{
					"points": []map[string]any{
						{"payload": map[string]any{"transcript_id": "t1", "chunk_index": 0, "chunk_text": "a"}},
						{"payload": map[string]any{"transcript_id": "t1", "chunk_index": 1, "chunk_text": "b"}},
					},
					"next_page_offset": "cursor-1",
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"points": []map[string]any{
					{"payload": map[string]any{"transcript_id": "t2", "chunk_index": 0, "chunk_text": "c"}},
				},
				"next_page_offset": nil,
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	chunks, err := client.ScrollAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks across pages, got %d", len(chunks))
	}
	if chunks[2].TranscriptID != "t2" {
		t.Fatalf("expected second page chunk last, got %+v", chunks[2])
	}
}

func TestSearchConnectionFailureWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := New(server.URL, "chunks", nil)
	_, err := client.Search(context.Background(), []float32{0.1}, nil, 5)
	if !domain.IsKind(err, domain.ErrVectorStoreUnavailable) {
		t.Fatalf("expected vector store unavailable, got %v", err)
	}
}

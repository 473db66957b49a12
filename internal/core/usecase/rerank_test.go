package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

func candidates(scores ...float64) []domain.ScoredResult {
	out := make([]domain.ScoredResult, len(scores))
	for i, score := range scores {
		out[i] = domain.ScoredResult{TranscriptID: "t1", ChunkIndex: i, Text: "chunk", Score: score}
	}
	return out
}

func TestRerankSkippedWithoutEnoughCandidates(t *testing.T) {
	reranker := NewReranker(&fakeCrossEncoder{available: true}, &fakeLLM{}, nil)

	out := reranker.Rerank(context.Background(), "q", candidates(0.2, 0.8), 3, "")
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Score != 0.8 {
		t.Fatalf("expected score ordering, got %+v", out)
	}
	for _, result := range out {
		if result.Reranked {
			t.Fatalf("expected no reranking flag, got %+v", result)
		}
	}
}

func TestRerankCrossEncoderCombinesScores(t *testing.T) {
	// Candidate 0: retrieval 1.0, encoder 0.1 -> 0.7*0.1 + 0.3*1.0 = 0.37
	// Candidate 1: retrieval 0.0, encoder 0.9 -> 0.7*0.9 + 0.3*0.0 = 0.63
	encoder := &fakeCrossEncoder{available: true, scores: []float64{0.1, 0.9}}
	reranker := NewReranker(encoder, &fakeLLM{}, nil)

	out := reranker.Rerank(context.Background(), "q", candidates(1.0, 0.0), 1, "")
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].ChunkIndex != 1 {
		t.Fatalf("expected encoder-favored chunk first, got %+v", out[0])
	}
	if !out[0].Reranked {
		t.Fatalf("expected reranked flag set")
	}
	if math.Abs(out[0].CombinedScore-0.63) > 1e-9 {
		t.Fatalf("expected combined score 0.63, got %f", out[0].CombinedScore)
	}
}

func TestRerankLLMSelectsIndices(t *testing.T) {
	llm := &fakeLLM{responses: []string{"3, 2"}}
	reranker := NewReranker(&fakeCrossEncoder{available: false}, llm, nil)

	out := reranker.Rerank(context.Background(), "q", candidates(0.9, 0.5, 0.1), 2, "llm")
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ChunkIndex != 2 || out[1].ChunkIndex != 1 {
		t.Fatalf("expected llm-selected order [2 1], got %+v", out)
	}
}

func TestRerankLLMTooFewIndicesFallsBack(t *testing.T) {
	llm := &fakeLLM{responses: []string{"42"}}
	reranker := NewReranker(&fakeCrossEncoder{available: false}, llm, nil)

	out := reranker.Rerank(context.Background(), "q", candidates(0.1, 0.9, 0.5), 2, "llm")
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].Score != 0.9 || out[1].Score != 0.5 {
		t.Fatalf("expected original score ordering fallback, got %+v", out)
	}
}

func TestRerankEncoderFailureFallsBackToLLM(t *testing.T) {
	encoder := &fakeCrossEncoder{available: true, err: errors.New("scoring failed")}
	llm := &fakeLLM{responses: []string{"1"}}
	reranker := NewReranker(encoder, llm, nil)

	out := reranker.Rerank(context.Background(), "q", candidates(0.5, 0.9), 1, "")
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0].ChunkIndex != 0 {
		t.Fatalf("expected llm-selected chunk 0, got %+v", out[0])
	}
}

func TestParseRerankIndices(t *testing.T) {
	indices := parseRerankIndices("Top fragments: 2, 5, 1", 5, 3)
	if len(indices) != 3 {
		t.Fatalf("expected 3 indices, got %v", indices)
	}
	if indices[0] != 1 || indices[1] != 4 || indices[2] != 0 {
		t.Fatalf("expected [1 4 0], got %v", indices)
	}

	indices = parseRerankIndices("9, 1", 3, 2)
	if len(indices) != 1 || indices[0] != 0 {
		t.Fatalf("expected out-of-range index dropped, got %v", indices)
	}
}

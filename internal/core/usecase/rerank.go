package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

const (
	rerankWeight   = 0.7
	originalWeight = 0.3
)

var digitsRe = regexp.MustCompile(`\d+`)

// Reranker reorders candidates by relevance to the question. The
// cross-encoder path combines its score with the retrieval score; when
// the encoder is unavailable an LLM picks indices instead. Every failure
// falls back to original-score ordering, never to an error.
type Reranker struct {
	encoder ports.CrossEncoder
	llm     ports.ChatCompleter
	log     *slog.Logger
}

func NewReranker(encoder ports.CrossEncoder, llm ports.ChatCompleter, log *slog.Logger) *Reranker {
	if log == nil {
		log = slog.Default()
	}
	return &Reranker{encoder: encoder, llm: llm, log: log}
}

// Rerank returns the topK most relevant candidates. Reranking only runs
// when there are strictly more candidates than topK; otherwise the
// candidates are returned ordered by retrieval score.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []domain.ScoredResult, topK int, model string) []domain.RerankedResult {
	if len(candidates) <= topK {
		r.log.Info("reranking skipped, not enough candidates", "candidates", len(candidates), "top_k", topK)
		return byOriginalScore(candidates, topK)
	}

	useEncoder := r.encoder != nil && model != "llm" && r.encoder.Available(ctx)
	if useEncoder {
		r.log.Info("reranking with cross-encoder", "model", r.encoder.ModelName(), "candidates", len(candidates))
		if reranked, ok := r.rerankCrossEncoder(ctx, question, candidates, topK); ok {
			return reranked
		}
	} else {
		r.log.Info("reranking with llm", "candidates", len(candidates))
	}
	if reranked, ok := r.rerankLLM(ctx, question, candidates, topK, model); ok {
		return reranked
	}
	return byOriginalScore(candidates, topK)
}

func (r *Reranker) rerankCrossEncoder(ctx context.Context, question string, candidates []domain.ScoredResult, topK int) ([]domain.RerankedResult, bool) {
	passages := make([]string, len(candidates))
	for i, candidate := range candidates {
		passages[i] = candidate.Text
	}

	scores, err := r.encoder.Score(ctx, question, passages)
	if err != nil {
		r.log.Warn("cross-encoder scoring failed, falling back", "error", err)
		return nil, false
	}

	reranked := make([]domain.RerankedResult, len(candidates))
	for i, candidate := range candidates {
		reranked[i] = domain.RerankedResult{
			ScoredResult:  candidate,
			Reranked:      true,
			RerankScore:   scores[i],
			CombinedScore: rerankWeight*scores[i] + originalWeight*candidate.Score,
		}
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].CombinedScore > reranked[j].CombinedScore })
	return reranked[:topK], true
}

func (r *Reranker) rerankLLM(ctx context.Context, question string, candidates []domain.ScoredResult, topK int, model string) ([]domain.RerankedResult, bool) {
	if r.llm == nil {
		return nil, false
	}

	var sb strings.Builder
	for i, candidate := range candidates {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Chunk %d]: %s", i+1, candidate.Text)
	}

	prompt := fmt.Sprintf(`Оцени релевантность следующих фрагментов текста для ответа на вопрос.
Верни номера топ-%d наиболее релевантных фрагментов, разделенные запятыми (например: 1,3,5).

Вопрос: %s

Фрагменты:
%s

Топ-%d наиболее релевантных фрагментов (номера через запятую):`, topK, question, sb.String(), topK)

	content, err := r.llm.Complete(ctx, ports.ChatRequest{
		Model: model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: "Ты помощник, который оценивает релевантность текстовых фрагментов для ответа на вопрос."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		r.log.Warn("llm reranking failed, falling back to original order", "error", err)
		return nil, false
	}

	indices := parseRerankIndices(content, len(candidates), topK)
	if len(indices) < topK {
		r.log.Warn("llm reranking returned too few valid indices", "got", len(indices), "need", topK)
		return nil, false
	}

	reranked := make([]domain.RerankedResult, 0, topK)
	for _, idx := range indices[:topK] {
		reranked = append(reranked, domain.RerankedResult{ScoredResult: candidates[idx], Reranked: true})
	}
	r.log.Info("llm reranking selected chunks", "selected", len(reranked), "from", len(candidates))
	return reranked, true
}

// parseRerankIndices extracts the first topK 1-based integers from the
// response and converts them to valid 0-based candidate indices.
func parseRerankIndices(text string, candidateCount, topK int) []int {
	matches := digitsRe.FindAllString(text, -1)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	out := make([]int, 0, len(matches))
	for _, match := range matches {
		n, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		idx := n - 1
		if idx >= 0 && idx < candidateCount {
			out = append(out, idx)
		}
	}
	return out
}

func byOriginalScore(candidates []domain.ScoredResult, topK int) []domain.RerankedResult {
	sorted := make([]domain.ScoredResult, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > topK {
		sorted = sorted[:topK]
	}
	out := make([]domain.RerankedResult, len(sorted))
	for i, candidate := range sorted {
		out[i] = domain.RerankedResult{ScoredResult: candidate}
	}
	return out
}

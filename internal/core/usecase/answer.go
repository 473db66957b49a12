package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

const (
	noResultsWithFilter = "Не удалось найти релевантную информацию для ответа на ваш вопрос. Возможно, транскрипты еще не проиндексированы. Попробуйте переиндексировать транскрипты или проверьте, что они завершены."
	noResultsNoFilter   = "Не удалось найти релевантную информацию. Убедитесь, что вы выбрали транскрипты для поиска и что они проиндексированы."
)

// Answerer runs a full question-answering turn: reformulate, retrieve
// with every query, rerank, synthesize and grade. Reformulation and
// reranking failures degrade silently; retrieval and synthesis failures
// are the only fatal ones.
type Answerer struct {
	reformulator *Reformulator
	retriever    *Retriever
	reranker     *Reranker
	synthesizer  *Synthesizer
	grader       *Grader
	log          *slog.Logger
}

func NewAnswerer(
	reformulator *Reformulator,
	retriever *Retriever,
	reranker *Reranker,
	synthesizer *Synthesizer,
	grader *Grader,
	log *slog.Logger,
) *Answerer {
	if log == nil {
		log = slog.Default()
	}
	return &Answerer{
		reformulator: reformulator,
		retriever:    retriever,
		reranker:     reranker,
		synthesizer:  synthesizer,
		grader:       grader,
		log:          log,
	}
}

func (a *Answerer) Answer(ctx context.Context, req domain.RetrievalRequest) (*domain.QAResult, error) {
	if req.Question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("question is empty"))
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	// Multi-hop replaces the question with sub-queries; expansion adds
	// to it. Multi-hop wins when both flags are set.
	queries := []string{req.Question}
	switch {
	case req.UseMultiHop:
		queries = a.reformulator.Decompose(ctx, req.Question, req.Model)
	case req.UseQueryExpansion:
		expanded := a.reformulator.Expand(ctx, req.Question, req.Model)
		queries = append(queries, expanded...)
		a.log.Info("query expansion added queries", "additional", len(expanded))
	}

	candidates, err := a.retriever.MultiSearch(ctx, queries, req.TranscriptIDs, topK, req.UseHybrid)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "retrieve chunks", err)
	}
	a.log.Info("retrieved unique chunks", "chunks", len(candidates), "queries", len(queries))

	if len(candidates) == 0 {
		answer := noResultsNoFilter
		if len(req.TranscriptIDs) > 0 {
			a.log.Warn("no chunks found, transcripts may not be indexed yet", "transcript_ids", req.TranscriptIDs)
			answer = noResultsWithFilter
		}
		return &domain.QAResult{
			Answer:    answer,
			Sources:   []domain.SourceRef{},
			Quality:   domain.QualityMetrics{},
			Retrieved: []domain.RerankedResult{},
		}, nil
	}

	var selected []domain.RerankedResult
	if req.UseReranking {
		selected = a.reranker.Rerank(ctx, req.Question, candidates, topK, req.RerankerModel)
	} else {
		a.log.Info("reranking disabled")
		selected = byOriginalScore(candidates, topK)
	}

	answer, err := a.synthesizer.Synthesize(ctx, req.Question, selected, req.Model, req.Temperature)
	if err != nil {
		return nil, err
	}

	in := gradeInput{
		question:     req.Question,
		answer:       answer,
		chunks:       selected,
		topK:         topK,
		useReranking: req.UseReranking,
		useHybrid:    req.UseHybrid,
	}
	var quality domain.QualityMetrics
	if req.UseAdvancedGrade {
		quality = a.grader.GradeAdvanced(ctx, in, req.Model)
		a.log.Info("advanced quality grading",
			"groundedness", quality.Groundedness,
			"completeness", quality.Completeness,
			"relevance", quality.Relevance,
			"overall", quality.OverallScore)
	} else {
		quality.OverallScore = a.grader.Grade(in)
		a.log.Info("quality grading", "score", quality.OverallScore)
	}

	sources := make([]domain.SourceRef, len(selected))
	for i, chunk := range selected {
		sources[i] = domain.SourceRef{
			TranscriptID: chunk.TranscriptID,
			ChunkIndex:   chunk.ChunkIndex,
			Score:        chunk.Score,
		}
	}

	return &domain.QAResult{
		Answer:    answer,
		Sources:   sources,
		Quality:   quality,
		Retrieved: selected,
	}, nil
}

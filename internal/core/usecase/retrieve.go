package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

const (
	defaultVectorWeight  = 0.7
	defaultLexicalWeight = 0.3
)

// Retriever issues vector and lexical searches and fuses their scores.
// Infrastructure unavailability (embeddings, vector store) degrades to
// empty results; only hard errors such as cancellation propagate.
type Retriever struct {
	embedder ports.Embedder
	vector   ports.VectorIndex
	lexical  ports.LexicalIndex
	log      *slog.Logger

	vectorWeight  float64
	lexicalWeight float64
}

func NewRetriever(
	embedder ports.Embedder,
	vector ports.VectorIndex,
	lexical ports.LexicalIndex,
	vectorWeight, lexicalWeight float64,
	log *slog.Logger,
) *Retriever {
	if vectorWeight <= 0 {
		vectorWeight = defaultVectorWeight
	}
	if lexicalWeight <= 0 {
		lexicalWeight = defaultLexicalWeight
	}
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{
		embedder:      embedder,
		vector:        vector,
		lexical:       lexical,
		log:           log,
		vectorWeight:  vectorWeight,
		lexicalWeight: lexicalWeight,
	}
}

// Search returns up to topK results for one query. With useHybrid the
// vector and lexical pools each hold topK*2 candidates before fusion.
func (r *Retriever) Search(ctx context.Context, query string, transcriptIDs []string, topK int, useHybrid bool) ([]domain.ScoredResult, error) {
	if topK <= 0 {
		topK = 5
	}
	if !useHybrid {
		return r.vectorSearch(ctx, query, transcriptIDs, topK)
	}

	vectorResults, err := r.vectorSearch(ctx, query, transcriptIDs, topK*2)
	if err != nil {
		return nil, err
	}
	lexicalResults := r.lexical.Search(query, transcriptIDs, topK*2)

	merged := r.fuse(vectorResults, lexicalResults)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// MultiSearch runs one search per query concurrently, then concatenates
// results in query order and deduplicates by (transcript_id, chunk_index),
// first occurrence winning. Merging waits for every query so results are
// deterministic per request.
func (r *Retriever) MultiSearch(ctx context.Context, queries []string, transcriptIDs []string, topK int, useHybrid bool) ([]domain.ScoredResult, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	if len(queries) == 1 {
		results, err := r.Search(ctx, queries[0], transcriptIDs, topK, useHybrid)
		if err != nil {
			return nil, err
		}
		return dedupeResults(results), nil
	}

	perQuery := make([][]domain.ScoredResult, len(queries))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, query := range queries {
		i, query := i, query
		group.Go(func() error {
			results, err := r.Search(groupCtx, query, transcriptIDs, topK, useHybrid)
			if err != nil {
				return fmt.Errorf("search query %d: %w", i, err)
			}
			perQuery[i] = results
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var all []domain.ScoredResult
	for _, results := range perQuery {
		all = append(all, results...)
	}
	return dedupeResults(all), nil
}

func (r *Retriever) vectorSearch(ctx context.Context, query string, transcriptIDs []string, limit int) ([]domain.ScoredResult, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmbeddingsUnavailable) {
			r.log.Warn("embeddings unavailable, vector search returns no results", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.vector.Search(ctx, queryVector, transcriptIDs, limit)
	if err != nil {
		if domain.IsKind(err, domain.ErrVectorStoreUnavailable) {
			r.log.Warn("vector store unavailable, search returns no results", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

// fuse merges two single-origin result sets by key with weighted score
// fusion. A result missing from one side contributes 0 for that side.
func (r *Retriever) fuse(vectorResults, lexicalResults []domain.ScoredResult) []domain.ScoredResult {
	type key struct {
		transcriptID string
		chunkIndex   int
	}

	combined := make(map[key]domain.ScoredResult, len(vectorResults)+len(lexicalResults))
	order := make([]key, 0, len(vectorResults)+len(lexicalResults))

	add := func(results []domain.ScoredResult, weight float64) {
		for _, result := range results {
			k := key{result.TranscriptID, result.ChunkIndex}
			if existing, ok := combined[k]; ok {
				existing.Score += result.Score * weight
				combined[k] = existing
				continue
			}
			merged := result
			merged.Score = result.Score * weight
			merged.Origin = domain.OriginHybrid
			combined[k] = merged
			order = append(order, k)
		}
	}

	add(vectorResults, r.vectorWeight)
	add(lexicalResults, r.lexicalWeight)

	out := make([]domain.ScoredResult, 0, len(order))
	for _, k := range order {
		out = append(out, combined[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// dedupeResults keeps the first occurrence per (transcript_id, chunk_index);
// scores of later duplicates are discarded, not merged.
func dedupeResults(results []domain.ScoredResult) []domain.ScoredResult {
	type key struct {
		transcriptID string
		chunkIndex   int
	}
	seen := make(map[key]struct{}, len(results))
	out := make([]domain.ScoredResult, 0, len(results))
	for _, result := range results {
		k := key{result.TranscriptID, result.ChunkIndex}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, result)
	}
	return out
}

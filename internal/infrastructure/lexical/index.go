package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Index is an in-memory BM25 index over every indexed chunk text.
// Rebuild and Add construct a fresh immutable state and swap it in under
// the write lock, so readers always see either the old or the new index.
type Index struct {
	mu    sync.RWMutex
	state *indexState
}

type indexState struct {
	docs  [][]string     // tokenized chunk texts, parallel to refs
	refs  []domain.Chunk // slot -> (transcript_id, chunk_index, text)
	df    map[string]int // document frequency per term
	avgdl float64
}

func NewIndex() *Index {
	return &Index{state: buildState(nil)}
}

// Rebuild fully replaces the index contents.
func (x *Index) Rebuild(chunks []domain.Chunk) {
	next := buildState(chunks)
	x.mu.Lock()
	x.state = next
	x.mu.Unlock()
}

// Add appends chunks and reindexes. The previous state is copied, never
// mutated in place.
func (x *Index) Add(chunks []domain.Chunk) {
	if len(chunks) == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	merged := make([]domain.Chunk, 0, len(x.state.refs)+len(chunks))
	merged = append(merged, x.state.refs...)
	merged = append(merged, chunks...)
	x.state = buildState(merged)
}

// Len reports the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.state.refs)
}

// Search scores chunks against the whitespace-tokenized, lower-cased
// query. Empty queries and queries with no matching terms return no
// results. When transcriptIDs is non-empty, results outside the set are
// filtered out after ranking.
func (x *Index) Search(query string, transcriptIDs []string, limit int) []domain.ScoredResult {
	if limit <= 0 {
		return nil
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	x.mu.RLock()
	state := x.state
	x.mu.RUnlock()

	if len(state.docs) == 0 {
		return nil
	}

	scores := state.score(queryTokens)

	// Rank more candidates than requested so the transcript filter does
	// not starve the result set.
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	if len(order) > limit*2 {
		order = order[:limit*2]
	}

	allowed := toIDSet(transcriptIDs)
	out := make([]domain.ScoredResult, 0, limit)
	for _, slot := range order {
		if scores[slot] <= 0 {
			continue
		}
		ref := state.refs[slot]
		if allowed != nil {
			if _, ok := allowed[ref.TranscriptID]; !ok {
				continue
			}
		}
		out = append(out, domain.ScoredResult{
			TranscriptID: ref.TranscriptID,
			ChunkIndex:   ref.ChunkIndex,
			Text:         ref.Text,
			Score:        scores[slot],
			Origin:       domain.OriginLexical,
			Metadata:     ref.Metadata,
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

func buildState(chunks []domain.Chunk) *indexState {
	state := &indexState{
		docs: make([][]string, 0, len(chunks)),
		refs: make([]domain.Chunk, 0, len(chunks)),
		df:   make(map[string]int),
	}

	totalLen := 0
	for _, chunk := range chunks {
		tokens := tokenize(chunk.Text)
		if len(tokens) == 0 {
			continue
		}
		state.docs = append(state.docs, tokens)
		state.refs = append(state.refs, chunk)
		totalLen += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			state.df[token]++
		}
	}

	if len(state.docs) > 0 {
		state.avgdl = float64(totalLen) / float64(len(state.docs))
	}
	return state
}

// score computes BM25 Okapi scores for every indexed chunk.
func (s *indexState) score(queryTokens []string) []float64 {
	n := float64(len(s.docs))
	scores := make([]float64, len(s.docs))

	for _, term := range queryTokens {
		df, ok := s.df[term]
		if !ok {
			continue
		}
		idf := math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for i, doc := range s.docs {
			tf := 0
			for _, token := range doc {
				if token == term {
					tf++
				}
			}
			if tf == 0 {
				continue
			}
			dl := float64(len(doc))
			norm := bm25K1 * (1 - bm25B + bm25B*dl/s.avgdl)
			scores[i] += idf * float64(tf) * (bm25K1 + 1) / (float64(tf) + norm)
		}
	}
	return scores
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func toIDSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

package domain

// ResultOrigin tells which index produced a score. Scores from different
// origins live on different scales and are only comparable after the
// hybrid merge has weighted them.
type ResultOrigin string

const (
	OriginVector  ResultOrigin = "vector"
	OriginLexical ResultOrigin = "lexical"
	OriginHybrid  ResultOrigin = "hybrid"
)

// Chunk is the unit of indexing and retrieval. (TranscriptID, ChunkIndex)
// is the natural key and is unique in both indexes after a reindex.
type Chunk struct {
	TranscriptID string         `json:"transcript_id"`
	ChunkIndex   int            `json:"chunk_index"`
	Text         string         `json:"text"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// EmbeddedChunk is a chunk plus its dense vector, sized to the active
// embedding dimension.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"vector"`
}

type ScoredResult struct {
	TranscriptID string         `json:"transcript_id"`
	ChunkIndex   int            `json:"chunk_index"`
	Text         string         `json:"chunk_text"`
	Score        float64        `json:"score"`
	Origin       ResultOrigin   `json:"origin"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RerankedResult carries the second-pass scores. Ordering is
// authoritative only after reranking; Reranked is false when the
// candidate pool was small enough to skip it.
type RerankedResult struct {
	ScoredResult
	Reranked      bool    `json:"reranked"`
	RerankScore   float64 `json:"rerank_score,omitempty"`
	CombinedScore float64 `json:"combined_score,omitempty"`
}

// RetrievalRequest is a per-call configuration snapshot. It carries no
// shared mutable state.
type RetrievalRequest struct {
	Question          string   `json:"question"`
	TranscriptIDs     []string `json:"transcript_ids,omitempty"`
	TopK              int      `json:"top_k"`
	Model             string   `json:"model,omitempty"`
	Temperature       float64  `json:"temperature"`
	UseHybrid         bool     `json:"use_hybrid"`
	UseReranking      bool     `json:"use_reranking"`
	UseQueryExpansion bool     `json:"use_query_expansion"`
	UseMultiHop       bool     `json:"use_multi_hop"`
	UseAdvancedGrade  bool     `json:"use_advanced_grading"`
	RerankerModel     string   `json:"reranker_model,omitempty"`
}

// QualityMetrics components are in [0,1]; OverallScore is in [0,5].
type QualityMetrics struct {
	Groundedness float64 `json:"groundedness"`
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	OverallScore float64 `json:"overall_score"`
}

type SourceRef struct {
	TranscriptID string  `json:"transcript_id"`
	ChunkIndex   int     `json:"chunk_index"`
	Score        float64 `json:"score"`
}

// QAResult is the outcome of one question-answering turn. A turn that
// found no retrievable content is still a QAResult (explanatory answer,
// empty sources, zero score), not an error.
type QAResult struct {
	Answer    string           `json:"answer"`
	Sources   []SourceRef      `json:"sources"`
	Quality   QualityMetrics   `json:"quality"`
	Retrieved []RerankedResult `json:"retrieved_chunks"`
}

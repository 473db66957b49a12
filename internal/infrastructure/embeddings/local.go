package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const localDimension = 384

// LocalEncoder is the in-process fallback model: a deterministic hashed
// word + character-trigram encoder producing L2-normalized dense
// vectors. It is far weaker than a learned model but keeps indexing and
// retrieval functional when the remote endpoint cannot serve.
type LocalEncoder struct {
	dimension int
}

func NewLocalEncoder() *LocalEncoder {
	return &LocalEncoder{dimension: localDimension}
}

// Dimension is read from the model itself, not from a remote hint.
func (e *LocalEncoder) Dimension() int {
	return e.dimension
}

func (e *LocalEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.encodeOne(text)
	}
	return out, nil
}

func (e *LocalEncoder) encodeOne(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, token := range tokenizeAlphaNum(text) {
		addFeature(vec, token, 1.0)
		runes := []rune(token)
		for j := 0; j+3 <= len(runes); j++ {
			addFeature(vec, "tri:"+string(runes[j:j+3]), 0.5)
		}
	}
	normalize(vec)
	return vec
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum32()
	slot := int(sum % uint32(len(vec)))
	// The high bit decides sign so collisions partially cancel.
	if sum&0x80000000 != 0 {
		weight = -weight
	}
	vec[slot] += weight
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}

func tokenizeAlphaNum(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

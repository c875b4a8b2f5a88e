package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Fake is a deterministic in-memory Client for tests: it hashes the input
// text into a pseudo-random unit vector of Dimension length, so identical
// text always embeds identically and distinct text embeds distinctly.
type Fake struct{}

// Embed returns a deterministic pseudo-embedding derived from text.
func (Fake) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, &Error{Cause: errEmptyText}
	}
	vec := make([]float32, Dimension)
	h := fnv.New64a()
	seed := uint64(1)
	for i := range vec {
		h.Reset()
		_, _ = h.Write([]byte(text))
		_, _ = h.Write([]byte{byte(i), byte(i >> 8), byte(seed)})
		seed = seed*1103515245 + 12345
		vec[i] = float32(h.Sum64()%1000)/1000.0 - 0.5
	}
	normalize(vec)
	return vec, nil
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

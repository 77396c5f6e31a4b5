package index

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// localDim is the vector width of the hash-projection embedder, matching
// the default width of the hosted embedding models so distance code never
// special-cases the backend.
const localDim = 768

// LocalEmbedder is a deterministic, offline embedding backend: each token is
// hashed into a fixed-width bag-of-words projection and the vector is
// L2-normalized. It has no semantic understanding, but identical code maps
// to identical vectors and near-duplicate code lands nearby, which is enough
// for tests and keyless local runs.
type LocalEmbedder struct{}

// NewLocalEmbedder creates the offline embedder.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{}
}

// Embed implements schemas.Embedder.
func (LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = projectTokens(text)
	}
	return vectors, nil
}

// Identity implements schemas.Embedder.
func (LocalEmbedder) Identity() string {
	return "local:hash-projection-v1"
}

func projectTokens(text string) []float32 {
	vec := make([]float32, localDim)
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(strings.ToLower(token)))
		sum := h.Sum64()
		idx := sum % localDim
		// The high bit decides the sign so common tokens do not all pile
		// into the positive orthant.
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// cosine returns the cosine similarity of two vectors, 0 when their widths
// differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

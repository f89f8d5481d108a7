package router

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/triadworks/triads/llm"
)

// EmbeddingDim is the vector dimensionality used throughout routing.
const EmbeddingDim = 384

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMEmbedder calls an embeddings endpoint through the llm client.
type LLMEmbedder struct {
	client *llm.Client
}

// NewLLMEmbedder wraps an llm client as an Embedder.
func NewLLMEmbedder(client *llm.Client) *LLMEmbedder {
	return &LLMEmbedder{client: client}
}

// Embed implements Embedder.
func (e *LLMEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, texts)
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// HashEmbedder is a deterministic offline embedder. Tokens are hashed
// into a fixed number of buckets with a signed second hash, then the
// vector is L2-normalized. Similar wording lands in similar buckets, so
// cosine scores remain meaningful without a model download or network
// call.
type HashEmbedder struct{}

// NewHashEmbedder returns the offline embedder.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

// Embed implements Embedder. It never fails and ignores ctx.
func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashEmbed(text)
	}
	return vectors, nil
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, EmbeddingDim)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % EmbeddingDim)
		sign := float32(1)
		if (sum>>32)&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// cosine computes cosine similarity between two vectors of equal length.
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

// meanVector averages a set of vectors and normalizes the result.
func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	mean := make([]float32, len(vectors[0]))
	for _, v := range vectors {
		for i := range v {
			mean[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return normalize(mean)
}

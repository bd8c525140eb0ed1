// Package hashing is an in-process lexical embedder based on feature hashing.
//
// Vectors are deterministic functions of the input text: tokens are lowercased,
// split on non-alphanumerics, hashed with FNV-1a into a fixed number of buckets
// (the hash sign picks +/-), weighted by 1+ln(tf) and L2-normalized so cosine
// distance is meaningful. It has no vocabulary state, so a query embeds to the
// same vector no matter what was indexed before.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kailas-cloud/cvcontext/internal/domain"
)

const minTokenLen = 2

// Embedder produces feature-hashed bag-of-words vectors.
type Embedder struct {
	dimensions int
}

// New creates a hashing embedder with the given output dimension.
func New(dimensions int) (*Embedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("hashing embedder: dimensions must be positive, got %d", dimensions)
	}
	return &Embedder{dimensions: dimensions}, nil
}

// Dimensions returns the output vector length.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed implements domain.Embedder. TotalTokens is the token count after filtering.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("hashing embed: %w", err)
	}
	vec, n := e.vector(text)
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: n, TotalTokens: n}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("hashing batch embed: %w", err)
			}
		}
		vec, n := e.vector(text)
		out.Embeddings[i] = vec
		out.PromptTokens += n
		out.TotalTokens += n
	}
	return out, nil
}

// HealthCheck always succeeds: there is nothing remote to reach.
func (e *Embedder) HealthCheck(context.Context) error { return nil }

func (e *Embedder) vector(text string) ([]float32, int) {
	vec := make([]float32, e.dimensions)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, 0
	}

	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}

	var norm float64
	acc := make([]float64, e.dimensions)
	for term, count := range tf {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimensions))
		weight := 1 + math.Log(float64(count))
		if sum>>63 == 1 {
			weight = -weight
		}
		acc[bucket] += weight
	}
	for _, v := range acc {
		norm += v * v
	}
	if norm == 0 {
		return vec, len(tokens)
	}

	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, len(tokens)
}

func tokenize(text string) []string {
	var tokens []string
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len([]rune(f)) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

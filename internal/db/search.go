package db

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DefaultVectorAlias is the attribute name KNN clauses address when a query names none.
const DefaultVectorAlias = "vector"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // attribute addressed by the KNN clause, DefaultVectorAlias if empty
	Metric       DistanceMetric
	Vector       []float32
	K            int
	ReturnFields []string
	// EFRuntime overrides the HNSW candidate list size for this query; 0 keeps the index default.
	EFRuntime int
}

// Field returns the vector attribute name the query targets.
func (q *KNNQuery) Field() string {
	if q.VectorField == "" {
		return DefaultVectorAlias
	}
	return q.VectorField
}

// SimilarityFromDistance maps a raw __vector_score distance to a similarity where higher is closer.
// COSINE and IP distances are 1-sim and get clamped to [0,1]; L2 maps to 1/(1+d).
func SimilarityFromDistance(metric DistanceMetric, d float64) float64 {
	switch metric {
	case DistanceL2:
		return 1 / (1 + d)
	default:
		return max(0, 1.0-d)
	}
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit. Score is a similarity: higher is closer.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// EncodeVector packs v as little-endian float32 bytes, the layout VECTOR hash fields expect.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(raw string) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(raw[i*4 : i*4+4])))
	}
	return vec, nil
}

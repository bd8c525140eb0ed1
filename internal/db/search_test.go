package db

import (
	"math"
	"testing"
)

func TestVectorEncoding_RoundTrip(t *testing.T) {
	vec := []float32{0.5, -2, float32(math.Pi)}
	raw := EncodeVector(vec)
	if len(raw) != 12 {
		t.Fatalf("encoded length = %d, want 12", len(raw))
	}

	got, err := DecodeVector(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("got %v, want %v", got, vec)
		}
	}

	if _, err := DecodeVector("abc"); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}

func TestSimilarityFromDistance(t *testing.T) {
	tests := []struct {
		metric   DistanceMetric
		distance float64
		expected float64
	}{
		{DistanceCosine, 0, 1},
		{DistanceCosine, 0.25, 0.75},
		{DistanceCosine, 1.5, 0},
		{DistanceIP, 0.1, 0.9},
		{DistanceL2, 0, 1},
		{DistanceL2, 1, 0.5},
	}
	for _, tc := range tests {
		if got := SimilarityFromDistance(tc.metric, tc.distance); math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("SimilarityFromDistance(%s, %v) = %v, want %v", tc.metric, tc.distance, got, tc.expected)
		}
	}
}

func TestKNNQuery_Field(t *testing.T) {
	if (&KNNQuery{}).Field() != "vector" {
		t.Error("empty VectorField should default to the vector alias")
	}
	if (&KNNQuery{VectorField: "emb"}).Field() != "emb" {
		t.Error("explicit VectorField should be kept")
	}
}

package facematch

import (
	"math"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{4, 4}, 1},
		{"diagonal", []float32{1, 0}, []float32{0.7, 0.7}, 1 / math.Sqrt2},
		{"empty", []float32{}, []float32{}, NotComparable},
		{"nil", nil, []float32{1}, NotComparable},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, NotComparable},
		{"zero norm", []float32{0, 0}, []float32{1, 0}, NotComparable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Similarity() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	vectors := [][]float32{
		{0.1, 0.5, -0.3, 0.9},
		{0.4, -0.2, 0.8, 0.1},
		{-1, 2, -3, 4},
		{0, 0, 0, 1},
	}
	for i := range vectors {
		for j := range vectors {
			ab := Similarity(vectors[i], vectors[j])
			ba := Similarity(vectors[j], vectors[i])
			if ab != ba {
				t.Errorf("Similarity(%d,%d) = %f but Similarity(%d,%d) = %f", i, j, ab, j, i, ba)
			}
		}
	}
}

func TestSimilarity_SelfIsMaximal(t *testing.T) {
	v := []float32{0.12, -0.53, 0.77, 0.01, 0.3}
	if got := Similarity(v, v); math.Abs(got-1) > 1e-6 {
		t.Errorf("Similarity(v, v) = %f, want 1", got)
	}
}

func TestBestScore(t *testing.T) {
	query := []float32{1, 0}
	embeddings := [][]float32{
		{0, 1},
		{1, 0.1},
		{1, 0, 0}, // different dimension, ignored
	}

	got := BestScore(query, embeddings)
	want := Similarity(query, []float32{1, 0.1})
	if got != want {
		t.Errorf("BestScore() = %f, want %f", got, want)
	}

	if got := BestScore(query, nil); got != NotComparable {
		t.Errorf("BestScore(nil) = %f, want %f", got, NotComparable)
	}
}

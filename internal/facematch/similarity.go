package facematch

import "math"

// NotComparable is returned by Similarity for vectors that cannot be compared.
// It sits at the bottom of the cosine range so it never passes a threshold.
const NotComparable = -1.0

// Similarity computes the cosine similarity between two embeddings.
// Returns NotComparable for empty vectors, mismatched lengths or zero norms.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return NotComparable
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return NotComparable
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp floating point drift.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// BestScore returns the highest similarity between query and any of embeddings.
func BestScore(query []float32, embeddings [][]float32) float64 {
	best := NotComparable
	for _, emb := range embeddings {
		if s := Similarity(query, emb); s > best {
			best = s
		}
	}
	return best
}

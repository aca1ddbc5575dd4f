package search

import "math"

// Cosine computes the cosine similarity of two embedding vectors, clamped to
// [0,1]. Negative similarities are floored at zero: the embedding spaces used
// here do not produce antonymic similarity that should outrank zero relevance.
// If either vector has zero magnitude the similarity is 0. Vectors are
// expected to have equal length; callers validate dimensions up front.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		magA += float64(v) * float64(v)
	}
	for _, v := range b {
		magB += float64(v) * float64(v)
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

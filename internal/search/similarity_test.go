package search

import (
	"math"
	"testing"
)

func TestCosine_Identical(t *testing.T) {
	v := []float32{0.1, 0.2, 0.3}

	got := Cosine(v, v)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected self-similarity 1.0, got %f", got)
	}
}

func TestCosine_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	got := Cosine(a, b)
	if got != 0 {
		t.Errorf("expected 0 for orthogonal vectors, got %f", got)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}

	if got := Cosine(a, b); got != 0 {
		t.Errorf("expected 0 for zero-magnitude vector, got %f", got)
	}
	if got := Cosine(b, a); got != 0 {
		t.Errorf("expected 0 for zero-magnitude vector, got %f", got)
	}
}

func TestCosine_NegativeClampedToZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{-1, 0}

	got := Cosine(a, b)
	if got != 0 {
		t.Errorf("expected opposing vectors clamped to 0, got %f", got)
	}
}

func TestCosine_Bounds(t *testing.T) {
	vectors := [][]float32{
		{0.5, -0.3, 0.8},
		{-0.2, 0.9, 0.1},
		{1, 1, 1},
	}

	for i, a := range vectors {
		for j, b := range vectors {
			got := Cosine(a, b)
			if got < 0 || got > 1 {
				t.Errorf("Cosine(v%d, v%d) = %f, want in [0,1]", i, j, got)
			}
		}
	}
}

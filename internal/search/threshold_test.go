package search

import (
	"testing"

	"github.com/knoguchi/kbase/internal/repository"
)

func scoredChunk(id int64, score float64) ScoredChunk {
	return ScoredChunk{
		Chunk: repository.Chunk{ID: id},
		Score: score,
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		base   float64
		want   float64
	}{
		{"high confidence raises bar", []float64{0.9, 0.6, 0.5}, 0.3, 0.5},
		{"low confidence widens net", []float64{0.35, 0.2}, 0.3, 0.2},
		{"middling keeps base", []float64{0.5, 0.4}, 0.3, 0.3},
		{"empty keeps base", nil, 0.3, 0.3},
		{"boundary 0.7 keeps base", []float64{0.7}, 0.3, 0.3},
		{"boundary 0.4 keeps base", []float64{0.4}, 0.3, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdaptiveThreshold(tt.scores, tt.base)
			if got != tt.want {
				t.Errorf("AdaptiveThreshold(%v, %v) = %v, want %v", tt.scores, tt.base, got, tt.want)
			}
		})
	}
}

func TestFilterByThreshold(t *testing.T) {
	chunks := []ScoredChunk{
		scoredChunk(1, 0.9),
		scoredChunk(2, 0.5),
		scoredChunk(3, 0.49),
		scoredChunk(4, 0.2),
	}

	filtered := FilterByThreshold(chunks, 0.5)

	if len(filtered) != 2 {
		t.Fatalf("expected 2 chunks kept, got %d", len(filtered))
	}
	if filtered[0].ID != 1 || filtered[1].ID != 2 {
		t.Errorf("expected chunks 1 and 2 in order, got %d and %d", filtered[0].ID, filtered[1].ID)
	}
}

func TestFilterByThreshold_KeepsEqual(t *testing.T) {
	chunks := []ScoredChunk{scoredChunk(1, 0.3)}

	filtered := FilterByThreshold(chunks, 0.3)
	if len(filtered) != 1 {
		t.Errorf("score equal to threshold should be kept, got %d chunks", len(filtered))
	}
}

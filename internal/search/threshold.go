package search

// Adaptive threshold bounds. When the best match is strong the bar is raised;
// when even the best match is mediocre the net is widened.
const (
	highConfidenceScore  = 0.7
	lowConfidenceScore   = 0.4
	strictThreshold      = 0.5
	lenientThreshold     = 0.2
	DefaultBaseThreshold = 0.3
)

// AdaptiveThreshold chooses a similarity cut-off from the shape of a
// descending score distribution. It applies only to single-signal cosine
// scores: RRF scores live on an incomparable scale and must never be filtered
// by this threshold. An empty batch returns the base threshold unchanged.
func AdaptiveThreshold(scores []float64, base float64) float64 {
	if len(scores) == 0 {
		return base
	}

	top := scores[0]
	switch {
	case top > highConfidenceScore:
		return strictThreshold
	case top < lowConfidenceScore:
		return lenientThreshold
	default:
		return base
	}
}

// FilterByThreshold drops chunks whose active score is below the threshold,
// preserving order.
func FilterByThreshold(chunks []ScoredChunk, threshold float64) []ScoredChunk {
	filtered := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Score >= threshold {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

package search

import "fmt"

// DefaultMMRLambda balances 70% relevance against 30% diversity.
const DefaultMMRLambda = 0.7

// Diversify applies Maximal Marginal Relevance to re-select topK chunks that
// balance relevance to the query against novelty with respect to already
// selected chunks:
//
//	mmr = λ·cos(query, candidate) − (1−λ)·max(cos(candidate, selected))
//
// The second term is zero while nothing is selected, so the first pick is the
// most relevant candidate. Each iteration picks the remaining candidate with
// the maximum MMR score (first occurrence wins ties) and records it in
// MMRScore. Score is left untouched: MMR changes membership and order, not
// the active ranking score.
//
// If there are at most topK candidates the input is returned unchanged; MMR
// only matters when downselecting. A candidate without an embedding uses its
// prior Score as its relevance term and contributes no similarity against
// others, so it can be picked but never suppresses diversity.
//
// Errors (empty query embedding, candidate dimension mismatch) abort
// diversification; the caller falls back to the original ranking.
func Diversify(candidates []ScoredChunk, queryVec []float32, topK int, lambda float64) ([]ScoredChunk, error) {
	if len(candidates) <= topK {
		return candidates, nil
	}
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	for _, c := range candidates {
		if len(c.Embedding) > 0 && len(c.Embedding) != len(queryVec) {
			return nil, fmt.Errorf("chunk %d embedding dimension %d does not match query dimension %d",
				c.ID, len(c.Embedding), len(queryVec))
		}
	}

	remaining := make([]ScoredChunk, len(candidates))
	copy(remaining, candidates)

	selected := make([]ScoredChunk, 0, topK)
	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := 0
		bestScore := 0.0

		for i, c := range remaining {
			var mmr float64
			if len(c.Embedding) == 0 {
				// No embedding: prior score stands in for relevance.
				mmr = c.Score
			} else {
				relevance := Cosine(queryVec, c.Embedding)

				maxSim := 0.0
				for _, s := range selected {
					if len(s.Embedding) == 0 {
						continue
					}
					if sim := Cosine(c.Embedding, s.Embedding); sim > maxSim {
						maxSim = sim
					}
				}

				mmr = lambda*relevance - (1-lambda)*maxSim
			}

			if i == 0 || mmr > bestScore {
				bestIdx = i
				bestScore = mmr
			}
		}

		best := remaining[bestIdx]
		best.MMRScore = bestScore
		selected = append(selected, best)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, nil
}

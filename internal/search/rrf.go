package search

import "sort"

// RRFK is the standard reciprocal rank fusion smoothing constant.
const RRFK = 60

// FuseRRF merges a vector-ranked list and a BM25-ranked list of the same
// candidate space using Reciprocal Rank Fusion:
//
//	rrf_score = Σ 1/(K + rank_i)
//
// over every list the chunk appears in, with 1-indexed ranks. A chunk absent
// from a list contributes nothing from that list. The fused list is sorted
// descending by RRF score; ties keep first-encounter order, so the vector
// list's ordering wins. Score is overwritten with the RRF score and the
// originating ranks are recorded for diagnostics.
//
// RRF scores are tiny by construction (typically 0.01–0.05 even for top
// results) and are not comparable to cosine similarities: downstream
// truncation must use position, never a score threshold.
func FuseRRF(vectorResults, bm25Results []ScoredChunk, k int) []ScoredChunk {
	if k <= 0 {
		k = RRFK
	}

	byID := make(map[int64]*ScoredChunk, len(vectorResults)+len(bm25Results))
	order := make([]int64, 0, len(vectorResults)+len(bm25Results))

	for rank, chunk := range vectorResults {
		entry, ok := byID[chunk.ID]
		if !ok {
			c := chunk
			entry = &c
			byID[chunk.ID] = entry
			order = append(order, chunk.ID)
		}
		entry.RRFScore += 1.0 / float64(k+rank+1)
		if entry.VectorRank == 0 {
			entry.VectorRank = rank + 1
		}
	}

	for rank, chunk := range bm25Results {
		entry, ok := byID[chunk.ID]
		if !ok {
			c := chunk
			entry = &c
			byID[chunk.ID] = entry
			order = append(order, chunk.ID)
		}
		entry.RRFScore += 1.0 / float64(k+rank+1)
		if entry.BM25Rank == 0 {
			entry.BM25Rank = rank + 1
		}
	}

	fused := make([]ScoredChunk, 0, len(order))
	for _, id := range order {
		entry := byID[id]
		entry.Score = entry.RRFScore
		fused = append(fused, *entry)
	}

	// Stable sort keeps accumulation order for equal scores.
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].RRFScore > fused[j].RRFScore
	})

	return fused
}

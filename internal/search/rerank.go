package search

import (
	"context"
	"sort"
)

// rerankPool caps how many candidates go through the cross-encoder. Callers
// over-fetch ~3× for reranking, so the pool is the top of a larger batch.
const rerankPool = 10

// rerank reorders the top poolSize candidates using the external pair scorer
// in one batched call. On any scorer failure (unavailable service, error,
// deadline expiry, or a malformed response) it logs and returns the pool in
// its input order unchanged. Degraded mode is a defined outcome here, never a
// propagated failure.
func (p *Pipeline) rerank(ctx context.Context, query string, chunks []ScoredChunk, poolSize int) []ScoredChunk {
	if len(chunks) == 0 {
		return chunks
	}
	if poolSize > len(chunks) {
		poolSize = len(chunks)
	}

	// Candidates past the pool are dropped here either way.
	pool := chunks[:poolSize]

	if p.scorer == nil {
		p.logger.Warn("reranking requested but no scorer configured, keeping original ranking")
		return pool
	}

	texts := make([]string, len(pool))
	for i, c := range pool {
		texts[i] = c.Text
	}

	scores, err := p.scorer.ScorePairs(ctx, query, texts)
	if err != nil {
		p.logger.Warn("reranker failed, keeping original ranking", "error", err, "candidates", len(pool))
		return pool
	}
	if len(scores) != len(pool) {
		p.logger.Warn("reranker returned wrong score count, keeping original ranking",
			"want", len(pool), "got", len(scores))
		return pool
	}

	reranked := make([]ScoredChunk, len(pool))
	copy(reranked, pool)
	for i := range reranked {
		reranked[i].RerankerScore = scores[i]
		reranked[i].OriginalScore = reranked[i].Score
		reranked[i].Score = scores[i]
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].RerankerScore > reranked[j].RerankerScore
	})

	return reranked
}

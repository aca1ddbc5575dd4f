// Package reranker provides cross-encoder scoring for retrieval results.
//
// A cross-encoder sees the query and a candidate passage together, which is
// more accurate than comparing independently-computed embeddings. It is also
// slower, so callers run it only over a small over-fetched candidate pool.
// Scorer failures are recoverable: the search pipeline falls back to the
// pre-rerank ordering instead of failing the request.
package reranker

import "context"

// PairScorer scores (query, text) pairs for relevance. The returned slice has
// the same length and order as texts.
type PairScorer interface {
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)
}

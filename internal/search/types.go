// Package search implements the retrieval-and-ranking pipeline: BM25 lexical
// scoring, cosine semantic scoring, adaptive threshold filtering, reciprocal
// rank fusion, cross-encoder reranking, and MMR diversification.
package search

import (
	"github.com/knoguchi/kbase/internal/repository"
)

// ScoredChunk is a chunk plus the scoring envelope accumulated across pipeline
// stages. Score always holds the currently active ranking score and is
// overwritten by each stage that changes the ranking (similarity search, then
// RRF fusion, then the reranker). MMRScore is informational and never
// replaces Score. The
// per-signal fields and ranks are kept for diagnostics; a stage must never
// require a field produced by a stage that was skipped.
type ScoredChunk struct {
	repository.Chunk

	Score float64

	VectorScore   float64
	BM25Score     float64
	RRFScore      float64
	RerankerScore float64
	OriginalScore float64
	MMRScore      float64

	VectorRank int
	BM25Rank   int
}

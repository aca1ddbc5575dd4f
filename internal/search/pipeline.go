package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/kbase/internal/embedder"
	"github.com/knoguchi/kbase/internal/repository"
	"github.com/knoguchi/kbase/internal/reranker"
)

// overFetchFactor is how many extra candidates are retrieved when a
// downstream stage (reranker, MMR) will downselect.
const overFetchFactor = 3

// Request describes one retrieval invocation.
type Request struct {
	Query string
	TopK  int

	// DocIDs restricts retrieval to the given documents when non-empty.
	DocIDs []uuid.UUID

	// UseHybrid combines BM25 and vector rankings with RRF instead of
	// vector-only similarity search.
	UseHybrid bool

	// UseReranker reorders an over-fetched candidate pool with the
	// cross-encoder before truncation.
	UseReranker bool

	// UseMMR diversifies the final selection with Maximal Marginal Relevance.
	UseMMR bool
}

// Pipeline runs retrieval end to end: candidate fetch, per-signal scoring,
// fusion, optional reranking, and optional diversification. It is stateless
// across requests; the only shared mutable state in the system is the
// response cache, which wraps the pipeline from the service layer.
type Pipeline struct {
	chunks   repository.ChunkRepository
	embedder embedder.Embedder
	scorer   reranker.PairScorer // optional
	logger   *slog.Logger

	baseThreshold float64
	mmrLambda     float64
}

// PipelineOption is a functional option for configuring a Pipeline.
type PipelineOption func(*Pipeline)

// WithPairScorer enables cross-encoder reranking with the given scorer.
func WithPairScorer(s reranker.PairScorer) PipelineOption {
	return func(p *Pipeline) {
		p.scorer = s
	}
}

// WithBaseThreshold sets the base similarity threshold for semantic-only search.
func WithBaseThreshold(t float64) PipelineOption {
	return func(p *Pipeline) {
		p.baseThreshold = t
	}
}

// WithMMRLambda sets the MMR relevance/diversity trade-off.
func WithMMRLambda(l float64) PipelineOption {
	return func(p *Pipeline) {
		p.mmrLambda = l
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates a retrieval pipeline over the given chunk store and embedder.
func NewPipeline(chunks repository.ChunkRepository, emb embedder.Embedder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		chunks:        chunks,
		embedder:      emb,
		logger:        slog.Default(),
		baseThreshold: DefaultBaseThreshold,
		mmrLambda:     DefaultMMRLambda,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Retrieve returns the topK most relevant chunks for the query, ordered by
// the active score of the last ranking stage. An empty result means "no
// relevant results" and is not an error; storage and embedding failures are.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) ([]ScoredChunk, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 6
	}

	// Fetch extra candidates when a later stage will downselect.
	initialK := topK
	if req.UseReranker || req.UseMMR {
		initialK = topK * overFetchFactor
	}

	var (
		results  []ScoredChunk
		queryVec []float32
		err      error
	)
	if req.UseHybrid {
		results, queryVec, err = p.hybridSearch(ctx, req.Query, initialK, req.DocIDs)
	} else {
		results, queryVec, err = p.vectorSearch(ctx, req.Query, initialK, req.DocIDs)
	}
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	if req.UseReranker {
		pool := rerankPool
		if pool > len(results) {
			pool = len(results)
		}
		results = p.rerank(ctx, req.Query, results, pool)
	}

	switch {
	case req.UseMMR && len(results) > topK:
		diversified, err := Diversify(results, queryVec, topK, p.mmrLambda)
		if err != nil {
			p.logger.Warn("MMR failed, keeping original ranking", "error", err)
			results = results[:topK]
		} else {
			results = diversified
		}
	case len(results) > topK:
		results = results[:topK]
	}

	return results, nil
}

// vectorSearch is the semantic-only path: index-assisted nearest-neighbor
// retrieval followed by adaptive threshold filtering.
func (p *Pipeline) vectorSearch(ctx context.Context, query string, k int, docIDs []uuid.UUID) ([]ScoredChunk, []float32, error) {
	queryVec, err := p.embedQuery(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	matches, err := p.chunks.TopKBySimilarity(ctx, queryVec, k, docIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("similarity search failed: %w", err)
	}

	results := make([]ScoredChunk, len(matches))
	scores := make([]float64, len(matches))
	for i, m := range matches {
		results[i] = ScoredChunk{
			Chunk:       m.Chunk,
			Score:       m.Score,
			VectorScore: m.Score,
		}
		scores[i] = m.Score
	}

	threshold := AdaptiveThreshold(scores, p.baseThreshold)
	filtered := FilterByThreshold(results, threshold)

	p.logger.Debug("vector search",
		"retrieved", len(results),
		"kept", len(filtered),
		"threshold", threshold,
		"base_threshold", p.baseThreshold,
	)

	return filtered, queryVec, nil
}

// hybridSearch scores the full candidate batch with BM25 and cosine
// similarity concurrently, then fuses the two rankings with RRF. No absolute
// score threshold is applied after fusion; truncation is by position only.
func (p *Pipeline) hybridSearch(ctx context.Context, query string, k int, docIDs []uuid.UUID) ([]ScoredChunk, []float32, error) {
	candidates, err := p.chunks.FetchCandidates(ctx, docIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("candidate fetch failed: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	// BM25 and semantic scoring are independent read-only passes over the
	// same immutable batch; fusion below is the synchronization point.
	var (
		bm25Scores []float64
		vecScores  []float64
		queryVec   []float32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bm25Scores = LexicalScores(query, candidates)
		return nil
	})
	g.Go(func() error {
		vec, err := p.embedQuery(gctx, query)
		if err != nil {
			return err
		}
		queryVec = vec
		vecScores = make([]float64, len(candidates))
		for i, c := range candidates {
			vecScores[i] = Cosine(vec, c.Embedding)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	scored := make([]ScoredChunk, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredChunk{
			Chunk:       c,
			BM25Score:   bm25Scores[i],
			VectorScore: vecScores[i],
		}
	}

	vectorRanked := make([]ScoredChunk, len(scored))
	copy(vectorRanked, scored)
	sort.SliceStable(vectorRanked, func(i, j int) bool {
		return vectorRanked[i].VectorScore > vectorRanked[j].VectorScore
	})

	bm25Ranked := make([]ScoredChunk, len(scored))
	copy(bm25Ranked, scored)
	sort.SliceStable(bm25Ranked, func(i, j int) bool {
		return bm25Ranked[i].BM25Score > bm25Ranked[j].BM25Score
	})

	fused := FuseRRF(vectorRanked, bm25Ranked, RRFK)
	if len(fused) > k {
		fused = fused[:k]
	}

	p.logger.Debug("hybrid search",
		"candidates", len(candidates),
		"fused", len(fused),
	)

	return fused, queryVec, nil
}

// embedQuery embeds the query and validates the vector dimension. A mismatch
// between the embedding model and the stored vectors is a configuration
// error, never a silent degradation.
func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if want := p.embedder.Dimension(); want > 0 && len(vec) != want {
		return nil, fmt.Errorf("embedding dimension mismatch: model returned %d, expected %d", len(vec), want)
	}
	return vec, nil
}

package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/knoguchi/kbase/internal/repository"
)

type fakeChunkRepo struct {
	candidates []repository.Chunk
	matches    []repository.SimilarityMatch
	err        error

	lastK      int
	lastDocIDs []uuid.UUID
}

func (f *fakeChunkRepo) CreateChunks(ctx context.Context, chunks []*repository.Chunk) error {
	return nil
}

func (f *fakeChunkRepo) FetchCandidates(ctx context.Context, docIDs []uuid.UUID) ([]repository.Chunk, error) {
	f.lastDocIDs = docIDs
	return f.candidates, f.err
}

func (f *fakeChunkRepo) TopKBySimilarity(ctx context.Context, embedding []float32, k int, docIDs []uuid.UUID) ([]repository.SimilarityMatch, error) {
	f.lastK = k
	f.lastDocIDs = docIDs
	if f.err != nil {
		return nil, f.err
	}
	if k > len(f.matches) {
		k = len(f.matches)
	}
	return f.matches[:k], nil
}

func (f *fakeChunkRepo) DeleteByDocument(ctx context.Context, docID uuid.UUID) error {
	return nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}

func (f *fakeEmbedder) Dimension() int    { return len(f.vec) }
func (f *fakeEmbedder) ModelName() string { return "fake-model" }

type fakeScorer struct {
	scores []float64
	err    error

	calls int
	texts []string
}

func (f *fakeScorer) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	f.calls++
	f.texts = texts
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func similarityMatches(n int, topScore, step float64) []repository.SimilarityMatch {
	matches := make([]repository.SimilarityMatch, n)
	for i := range matches {
		matches[i] = repository.SimilarityMatch{
			Chunk: repository.Chunk{ID: int64(i + 1), Text: fmt.Sprintf("chunk %d", i+1)},
			Score: topScore - float64(i)*step,
		}
	}
	return matches
}

func TestRetrieve_VectorSearch(t *testing.T) {
	repo := &fakeChunkRepo{matches: similarityMatches(6, 0.65, 0.01)}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := p.Retrieve(context.Background(), Request{Query: "test", TopK: 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if repo.lastK != 6 {
		t.Errorf("expected k=6 without over-fetch, got %d", repo.lastK)
	}
	if results[0].Score != 0.65 || results[0].VectorScore != 0.65 {
		t.Errorf("expected similarity recorded as both Score and VectorScore, got %f / %f",
			results[0].Score, results[0].VectorScore)
	}
}

func TestRetrieve_AdaptiveThresholdFilters(t *testing.T) {
	// Top score 0.9 triggers the strict 0.5 threshold, dropping the tail.
	repo := &fakeChunkRepo{matches: []repository.SimilarityMatch{
		{Chunk: repository.Chunk{ID: 1}, Score: 0.9},
		{Chunk: repository.Chunk{ID: 2}, Score: 0.55},
		{Chunk: repository.Chunk{ID: 3}, Score: 0.45},
		{Chunk: repository.Chunk{ID: 4}, Score: 0.35},
	}}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := p.Retrieve(context.Background(), Request{Query: "test", TopK: 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results above strict threshold, got %d", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 2 {
		t.Errorf("expected chunks 1 and 2, got %d and %d", results[0].ID, results[1].ID)
	}
}

func TestRetrieve_EmptyIsNotError(t *testing.T) {
	repo := &fakeChunkRepo{}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := p.Retrieve(context.Background(), Request{Query: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestRetrieve_RerankerOverFetchAndPool(t *testing.T) {
	repo := &fakeChunkRepo{matches: similarityMatches(18, 0.95, 0.01)}
	scorer := &fakeScorer{scores: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}}, WithPairScorer(scorer))

	results, err := p.Retrieve(context.Background(), Request{Query: "test", TopK: 6, UseReranker: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.lastK != 18 {
		t.Errorf("expected 3x over-fetch of 18, got %d", repo.lastK)
	}
	if len(scorer.texts) != 10 {
		t.Errorf("expected pool of 10 scored, got %d", len(scorer.texts))
	}
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	// Ascending cross-encoder scores reverse the pool, so chunk 10 comes first.
	if results[0].ID != 10 {
		t.Errorf("expected chunk 10 first after reranking, got %d", results[0].ID)
	}
	if results[0].RerankerScore != 1.0 {
		t.Errorf("expected reranker score 1.0, got %f", results[0].RerankerScore)
	}
	if results[0].OriginalScore == 0 || results[0].Score != results[0].RerankerScore {
		t.Errorf("expected Score replaced by reranker score with original preserved")
	}
}

func TestRetrieve_RerankerFailureFallsBack(t *testing.T) {
	repo := &fakeChunkRepo{matches: similarityMatches(10, 0.95, 0.01)}
	scorer := &fakeScorer{err: errors.New("connection refused")}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}}, WithPairScorer(scorer))

	results, err := p.Retrieve(context.Background(), Request{Query: "test", TopK: 6, UseReranker: true})
	if err != nil {
		t.Fatalf("reranker failure must not surface as an error, got %v", err)
	}
	if len(results) != 6 {
		t.Fatalf("expected 6 results in degraded mode, got %d", len(results))
	}
	for i, r := range results {
		if r.ID != int64(i+1) {
			t.Errorf("position %d: expected original order preserved, got chunk %d", i, r.ID)
		}
		if r.RerankerScore != 0 {
			t.Errorf("degraded mode must not record reranker scores")
		}
	}
	if scorer.calls != 1 {
		t.Errorf("expected a single scorer call, got %d", scorer.calls)
	}
}

func TestRetrieve_RerankerWrongCountFallsBack(t *testing.T) {
	repo := &fakeChunkRepo{matches: similarityMatches(10, 0.95, 0.01)}
	scorer := &fakeScorer{scores: []float64{0.5, 0.4}}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}}, WithPairScorer(scorer))

	results, err := p.Retrieve(context.Background(), Request{Query: "test", TopK: 6, UseReranker: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 6 || results[0].ID != 1 {
		t.Errorf("expected original order on malformed scorer response")
	}
}

func TestRetrieve_HybridRanksLexicalMatch(t *testing.T) {
	// The relevant chunk matches both lexically and semantically; the other
	// matches neither. Embeddings are aligned so cosine agrees with BM25.
	relevantVec := []float32{1, 0}
	otherVec := []float32{0, 1}
	repo := &fakeChunkRepo{candidates: []repository.Chunk{
		{ID: 1, Text: "The Tesla Model S has a range of 400 miles", Embedding: relevantVec},
		{ID: 2, Text: "Slow cooking brisket takes about twelve hours", Embedding: otherVec},
		{ID: 3, Text: "Annual rainfall in the Atacama desert is minimal", Embedding: otherVec},
	}}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := p.Retrieve(context.Background(), Request{
		Query:     "what is the range of the tesla model s",
		TopK:      2,
		UseHybrid: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 1 {
		t.Errorf("expected the relevant chunk ranked first, got %d", results[0].ID)
	}
	if results[0].Score != results[0].RRFScore {
		t.Errorf("hybrid results must carry the RRF score as the active score")
	}
	if results[0].VectorRank != 1 || results[0].BM25Rank != 1 {
		t.Errorf("expected ranks (1,1) for the relevant chunk, got (%d,%d)",
			results[0].VectorRank, results[0].BM25Rank)
	}
}

func TestRetrieve_HybridNoThresholdOnRRF(t *testing.T) {
	// RRF scores are tiny; if the similarity threshold were applied after
	// fusion everything would be dropped.
	repo := &fakeChunkRepo{candidates: []repository.Chunk{
		{ID: 1, Text: "alpha beta", Embedding: []float32{1, 0}},
		{ID: 2, Text: "gamma delta", Embedding: []float32{0, 1}},
	}}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}}, WithBaseThreshold(0.3))

	results, err := p.Retrieve(context.Background(), Request{Query: "alpha", TopK: 2, UseHybrid: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both chunks to survive fusion, got %d", len(results))
	}
}

func TestRetrieve_MMRFallbackOnError(t *testing.T) {
	// Candidate embeddings disagree on dimension, so MMR errors out and the
	// pipeline keeps the original ranking truncated to topK.
	repo := &fakeChunkRepo{matches: []repository.SimilarityMatch{
		{Chunk: repository.Chunk{ID: 1, Embedding: []float32{1, 0}}, Score: 0.6},
		{Chunk: repository.Chunk{ID: 2, Embedding: []float32{1, 0, 0}}, Score: 0.55},
		{Chunk: repository.Chunk{ID: 3, Embedding: []float32{0, 1}}, Score: 0.5},
	}}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0}})

	results, err := p.Retrieve(context.Background(), Request{Query: "test", TopK: 2, UseMMR: true})
	if err != nil {
		t.Fatalf("MMR failure must not surface as an error, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results after fallback truncation, got %d", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 2 {
		t.Errorf("expected original order preserved, got %d and %d", results[0].ID, results[1].ID)
	}
}

func TestRetrieve_MMRDiversifies(t *testing.T) {
	repo := &fakeChunkRepo{matches: []repository.SimilarityMatch{
		{Chunk: repository.Chunk{ID: 1, Embedding: []float32{0.8, 0.6, 0}}, Score: 0.66},
		{Chunk: repository.Chunk{ID: 2, Embedding: []float32{0.8, 0.6, 0}}, Score: 0.65},
		{Chunk: repository.Chunk{ID: 3, Embedding: []float32{0.6, -0.3, 0.7416}}, Score: 0.6},
	}}
	p := NewPipeline(repo, &fakeEmbedder{vec: []float32{1, 0, 0}})

	results, err := p.Retrieve(context.Background(), Request{Query: "test", TopK: 2, UseMMR: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 3 {
		t.Errorf("expected MMR to pick chunks 1 and 3, got %d and %d", results[0].ID, results[1].ID)
	}
	if results[1].MMRScore == 0 {
		t.Errorf("expected MMR score recorded on selected chunks")
	}
}

func TestRetrieve_EmbedderErrorPropagates(t *testing.T) {
	repo := &fakeChunkRepo{matches: similarityMatches(3, 0.6, 0.01)}
	p := NewPipeline(repo, &fakeEmbedder{err: errors.New("ollama unreachable")})

	if _, err := p.Retrieve(context.Background(), Request{Query: "test"}); err == nil {
		t.Error("expected embedder error to propagate")
	}
}

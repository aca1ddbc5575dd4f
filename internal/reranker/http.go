package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single scoring call. The pipeline treats a timeout
// like any other scorer failure and falls back to the pre-rerank ordering.
const DefaultTimeout = 10 * time.Second

// HTTPScorer implements PairScorer against a cross-encoder scoring service
// exposing a TEI-style /rerank endpoint.
type HTTPScorer struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPScorerOption is a functional option for configuring HTTPScorer.
type HTTPScorerOption func(*HTTPScorer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPScorerOption {
	return func(s *HTTPScorer) {
		s.httpClient = client
	}
}

// NewHTTPScorer creates a scorer client for the given service base URL.
func NewHTTPScorer(baseURL string, opts ...HTTPScorerOption) *HTTPScorer {
	s := &HTTPScorer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// rerankRequest is the request body for the /rerank endpoint.
type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

// rerankResult is one scored entry in the service response. Results may come
// back sorted by score, so the index is used to restore input order.
type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ScorePairs scores every (query, text) pair in a single batched call.
func (s *HTTPScorer) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	jsonBody, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/rerank", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker API error (status %d): %s", resp.StatusCode, string(body))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(results) != len(texts) {
		return nil, fmt.Errorf("reranker returned %d scores for %d texts", len(results), len(texts))
	}

	scores := make([]float64, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("reranker returned out-of-range index %d", r.Index)
		}
		scores[r.Index] = r.Score
	}

	return scores, nil
}

// Ensure HTTPScorer implements PairScorer interface.
var _ PairScorer = (*HTTPScorer)(nil)

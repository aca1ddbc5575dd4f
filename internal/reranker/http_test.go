package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPScorer_ScorePairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("expected /rerank path, got %s", r.URL.Path)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Query != "test query" {
			t.Errorf("expected query forwarded, got %q", req.Query)
		}
		if len(req.Texts) != 3 {
			t.Errorf("expected 3 texts, got %d", len(req.Texts))
		}

		// Sorted by score, as TEI returns them.
		json.NewEncoder(w).Encode([]rerankResult{
			{Index: 2, Score: 0.9},
			{Index: 0, Score: 0.5},
			{Index: 1, Score: 0.1},
		})
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL)

	scores, err := scorer.ScorePairs(context.Background(), "test query", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Scores restored to input order via the index field.
	want := []float64{0.5, 0.1, 0.9}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("score %d: expected %f, got %f", i, want[i], scores[i])
		}
	}
}

func TestHTTPScorer_EmptyTexts(t *testing.T) {
	scorer := NewHTTPScorer("http://unreachable.invalid")

	scores, err := scorer.ScorePairs(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("expected no scores for no texts, got %d", len(scores))
	}
}

func TestHTTPScorer_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL)

	if _, err := scorer.ScorePairs(context.Background(), "query", []string{"a"}); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestHTTPScorer_WrongCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankResult{{Index: 0, Score: 0.5}})
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL)

	if _, err := scorer.ScorePairs(context.Background(), "query", []string{"a", "b"}); err == nil {
		t.Error("expected error on score count mismatch")
	}
}

func TestHTTPScorer_OutOfRangeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]rerankResult{{Index: 5, Score: 0.5}})
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL)

	if _, err := scorer.ScorePairs(context.Background(), "query", []string{"a"}); err == nil {
		t.Error("expected error on out-of-range index")
	}
}

func TestHTTPScorer_Unreachable(t *testing.T) {
	scorer := NewHTTPScorer("http://127.0.0.1:1")

	if _, err := scorer.ScorePairs(context.Background(), "query", []string{"a"}); err == nil {
		t.Error("expected error when the service is unreachable")
	}
}

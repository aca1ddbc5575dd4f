// Package service composes the retrieval pipeline, response cache, answer
// generation, and analytics into the operations the HTTP surface exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/knoguchi/kbase/internal/analytics"
	"github.com/knoguchi/kbase/internal/cache"
	"github.com/knoguchi/kbase/internal/llm"
	"github.com/knoguchi/kbase/internal/query"
	"github.com/knoguchi/kbase/internal/search"
)

// ErrNoResults signals that retrieval found nothing relevant. It is a defined
// outcome, not a failure: the caller turns it into a "no relevant
// information" response.
var ErrNoResults = errors.New("no relevant results")

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

const answerSystemPrompt = `You are a helpful AI assistant that answers questions based strictly on the provided context.

Rules:
1. Answer ONLY using information from the provided context
2. If the answer is not in the context, say "I don't have enough information to answer that question based on the provided documents."
3. Always cite your sources using [1], [2], etc. inline where you reference information
4. Be concise and accurate
5. Do not make up or infer information not present in the context`

// maxContextChunks caps how many chunks go into the generation prompt.
const maxContextChunks = 8

// previewLength is the highlighted source preview size in characters.
const previewLength = 200

// AskRequest is a question against the knowledge base.
type AskRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k,omitempty"`
	DocIDs      []string `json:"doc_ids,omitempty"`
	UseHybrid   bool     `json:"use_hybrid,omitempty"`
	UseReranker bool     `json:"use_reranker,omitempty"`
	UseMMR      bool     `json:"use_mmr,omitempty"`
}

// Source is a citation for an answer.
type Source struct {
	ChunkID     int64   `json:"chunk_id"`
	DocID       string  `json:"doc_id"`
	Page        *int    `json:"page,omitempty"`
	Score       float64 `json:"score"`
	TextPreview string  `json:"text_preview,omitempty"`
}

// ResponseMetadata describes how a response was produced.
type ResponseMetadata struct {
	ResponseTimeMS     float64   `json:"response_time_ms"`
	Cached             bool      `json:"cached"`
	SearchMethod       string    `json:"search_method"`
	RerankerUsed       bool      `json:"reranker_used"`
	MMRUsed            bool      `json:"mmr_used"`
	NumChunksRetrieved int       `json:"num_chunks_retrieved"`
	Timestamp          time.Time `json:"timestamp"`
}

// AskResponse is the generated answer with its sources.
type AskResponse struct {
	Answer   string           `json:"answer"`
	Sources  []Source         `json:"sources"`
	Query    string           `json:"query"`
	Metadata ResponseMetadata `json:"metadata"`
}

// cachedAnswer is the cache payload: the parts of a response that are stable
// across identical requests. Metadata is recomputed per request.
type cachedAnswer struct {
	Answer  string
	Sources []Source
	Query   string
}

// AskService answers questions over the indexed corpus. The response cache
// wraps the entire pipeline: a hit short-circuits retrieval, reranking,
// diversification, and generation.
type AskService struct {
	pipeline  *search.Pipeline
	llmClient llm.LLM
	cache     *cache.ResponseCache
	tracker   *analytics.Tracker
	logger    *slog.Logger

	defaultTopK int
	model       string
}

// AskConfig holds construction parameters for AskService.
type AskConfig struct {
	DefaultTopK int
	Model       string
	Logger      *slog.Logger
}

// NewAskService creates a new AskService.
func NewAskService(pipeline *search.Pipeline, llmClient llm.LLM, respCache *cache.ResponseCache, tracker *analytics.Tracker, cfg AskConfig) *AskService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = 6
	}

	return &AskService{
		pipeline:    pipeline,
		llmClient:   llmClient,
		cache:       respCache,
		tracker:     tracker,
		logger:      logger,
		defaultTopK: topK,
		model:       cfg.Model,
	}
}

// Ask retrieves relevant chunks and generates a cited answer.
func (s *AskService) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	docIDs, err := parseDocIDs(req.DocIDs)
	if err != nil {
		return nil, err
	}

	preprocessed := query.Preprocess(req.Query)
	terms := query.Keywords(preprocessed)
	if preprocessed != req.Query {
		s.logger.Debug("query preprocessed", "original", req.Query, "preprocessed", preprocessed)
	}

	searchMethod := "vector"
	if req.UseHybrid {
		searchMethod = "hybrid"
	}

	// Flags change the pipeline output, so they are part of the cache
	// identity alongside the normalized query.
	cacheQuery := preprocessed + cacheKeySuffix(req)

	if cached, ok := s.cache.Get(cacheQuery, req.DocIDs, topK); ok {
		answer, isAnswer := cached.(cachedAnswer)
		if isAnswer {
			elapsed := msSince(start)
			s.logQuery(req, elapsed, true, len(answer.Sources), searchMethod)
			s.logger.Info("cache hit", "query", truncateQuery(req.Query))
			return &AskResponse{
				Answer:  answer.Answer,
				Sources: answer.Sources,
				Query:   req.Query,
				Metadata: ResponseMetadata{
					ResponseTimeMS:     elapsed,
					Cached:             true,
					SearchMethod:       searchMethod,
					RerankerUsed:       req.UseReranker,
					MMRUsed:            req.UseMMR,
					NumChunksRetrieved: len(answer.Sources),
					Timestamp:          time.Now(),
				},
			}, nil
		}
	}

	chunks, err := s.pipeline.Retrieve(ctx, search.Request{
		Query:       preprocessed,
		TopK:        topK,
		DocIDs:      docIDs,
		UseHybrid:   req.UseHybrid,
		UseReranker: req.UseReranker,
		UseMMR:      req.UseMMR,
	})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoResults
	}

	answer, err := s.generateAnswer(ctx, req.Query, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	sources := make([]Source, len(chunks))
	for i, c := range chunks {
		sources[i] = Source{
			ChunkID:     c.ID,
			DocID:       c.DocID.String(),
			Page:        c.Page,
			Score:       c.Score,
			TextPreview: query.Highlight(c.Text, terms, previewLength),
		}
	}

	elapsed := msSince(start)
	s.logQuery(req, elapsed, false, len(sources), searchMethod)

	s.cache.Set(cacheQuery, req.DocIDs, topK, cachedAnswer{
		Answer:  answer,
		Sources: sources,
		Query:   req.Query,
	})

	return &AskResponse{
		Answer:  answer,
		Sources: sources,
		Query:   req.Query,
		Metadata: ResponseMetadata{
			ResponseTimeMS:     elapsed,
			Cached:             false,
			SearchMethod:       searchMethod,
			RerankerUsed:       req.UseReranker,
			MMRUsed:            req.UseMMR,
			NumChunksRetrieved: len(chunks),
			Timestamp:          time.Now(),
		},
	}, nil
}

// Search runs retrieval only, without generation or caching. Used by callers
// that want the ranked chunks themselves.
func (s *AskService) Search(ctx context.Context, req AskRequest) ([]search.ScoredChunk, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	docIDs, err := parseDocIDs(req.DocIDs)
	if err != nil {
		return nil, err
	}

	return s.pipeline.Retrieve(ctx, search.Request{
		Query:       query.Preprocess(req.Query),
		TopK:        topK,
		DocIDs:      docIDs,
		UseHybrid:   req.UseHybrid,
		UseReranker: req.UseReranker,
		UseMMR:      req.UseMMR,
	})
}

// CacheStats exposes cache statistics for the operations surface.
func (s *AskService) CacheStats() cache.Stats {
	return s.cache.GetStats()
}

// ClearCache drops all cached responses.
func (s *AskService) ClearCache() {
	s.cache.Clear()
}

// generateAnswer builds the citation prompt over the top chunks and calls the LLM.
func (s *AskService) generateAnswer(ctx context.Context, question string, chunks []search.ScoredChunk) (string, error) {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nContext:\n")

	limit := len(chunks)
	if limit > maxContextChunks {
		limit = maxContextChunks
	}
	for i := 0; i < limit; i++ {
		c := chunks[i]
		sb.WriteString(fmt.Sprintf("[%d] (doc=%s", i+1, c.DocID))
		if c.Page != nil {
			sb.WriteString(fmt.Sprintf(", page=%d", *c.Page))
		}
		if c.Filename != "" {
			sb.WriteString(fmt.Sprintf(", file=%s", c.Filename))
		}
		sb.WriteString(")\n")
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Please provide a concise answer based on the context above. Include citations like [1], [2] where relevant.")

	return s.llmClient.Generate(ctx, sb.String(), llm.GenerateOptions{
		Model:        s.model,
		SystemPrompt: answerSystemPrompt,
		Temperature:  0.2,
		MaxTokens:    1024,
	})
}

func (s *AskService) logQuery(req AskRequest, elapsed float64, cacheHit bool, numResults int, method string) {
	if s.tracker == nil {
		return
	}
	s.tracker.LogQuery(analytics.QueryEvent{
		Query:          req.Query,
		ResponseTimeMS: elapsed,
		CacheHit:       cacheHit,
		NumResults:     numResults,
		SearchMethod:   method,
		UseReranker:    req.UseReranker,
	})
}

// cacheKeySuffix folds the pipeline flags into the cache identity.
func cacheKeySuffix(req AskRequest) string {
	var sb strings.Builder
	if req.UseHybrid {
		sb.WriteString("_hybrid")
	}
	if req.UseReranker {
		sb.WriteString("_reranker")
	}
	if req.UseMMR {
		sb.WriteString("_mmr")
	}
	return sb.String()
}

func parseDocIDs(ids []string) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	// Sorted copy so equivalent filters behave identically downstream.
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	parsed := make([]uuid.UUID, len(sorted))
	for i, id := range sorted {
		u, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid doc_id %q", ErrInvalidRequest, id)
		}
		parsed[i] = u
	}
	return parsed, nil
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func truncateQuery(q string) string {
	const max = 50
	if len(q) <= max {
		return q
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(q[cut]) {
		cut--
	}
	return q[:cut] + "..."
}

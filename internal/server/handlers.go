package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/knoguchi/kbase/internal/analytics"
	"github.com/knoguchi/kbase/internal/repository"
	"github.com/knoguchi/kbase/internal/service"
)

// noResultsSuggestions is returned alongside a 404 when retrieval finds
// nothing above the relevance threshold.
var noResultsSuggestions = []string{
	"Try rephrasing your question with different keywords",
	"Use broader or more general terms",
	"Check that relevant documents have been uploaded",
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	ask     *service.AskService
	docs    *service.DocumentService
	tracker *analytics.Tracker
	ready   func(ctx context.Context) error
	logger  *slog.Logger

	maxUploadBytes int64
}

// HandlersConfig holds construction parameters for Handlers.
type HandlersConfig struct {
	Ask       *service.AskService
	Documents *service.DocumentService
	Tracker   *analytics.Tracker
	// Ready reports whether downstream dependencies are reachable. Used by
	// the readiness endpoint; nil means always ready.
	Ready          func(ctx context.Context) error
	Logger         *slog.Logger
	MaxUploadBytes int64
}

// NewHandlers creates the handler set.
func NewHandlers(cfg HandlersConfig) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handlers{
		ask:            cfg.Ask,
		docs:           cfg.Documents,
		tracker:        cfg.Tracker,
		ready:          cfg.Ready,
		logger:         logger,
		maxUploadBytes: maxUpload,
	}
}

func (h *Handlers) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handlers) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req service.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.ask.Ask(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// searchResult is one ranked chunk in a retrieval-only response.
type searchResult struct {
	ChunkID       int64   `json:"chunk_id"`
	DocID         string  `json:"doc_id"`
	ChunkIndex    int     `json:"chunk_index"`
	Page          *int    `json:"page,omitempty"`
	Text          string  `json:"text"`
	Score         float64 `json:"score"`
	VectorScore   float64 `json:"vector_score,omitempty"`
	BM25Score     float64 `json:"bm25_score,omitempty"`
	RRFScore      float64 `json:"rrf_score,omitempty"`
	RerankerScore float64 `json:"reranker_score,omitempty"`
	MMRScore      float64 `json:"mmr_score,omitempty"`
	Title         string  `json:"title,omitempty"`
	Filename      string  `json:"filename,omitempty"`
}

func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req service.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	chunks, err := h.ask.Search(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	results := make([]searchResult, len(chunks))
	for i, c := range chunks {
		results[i] = searchResult{
			ChunkID:       c.ID,
			DocID:         c.DocID.String(),
			ChunkIndex:    c.ChunkIndex,
			Page:          c.Page,
			Text:          c.Text,
			Score:         c.Score,
			VectorScore:   c.VectorScore,
			BM25Score:     c.BM25Score,
			RRFScore:      c.RRFScore,
			RerankerScore: c.RerankerScore,
			MMRScore:      c.MMRScore,
			Title:         c.Title,
			Filename:      c.Filename,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

func (h *Handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "file exceeds upload size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "multipart form must include a 'file' field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "file exceeds upload size limit")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := h.docs.Upload(r.Context(), header.Filename, content)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

// documentResponse is the serialized form of a stored document.
type documentResponse struct {
	DocID      string `json:"doc_id"`
	Title      string `json:"title"`
	Filename   string `json:"filename"`
	Mime       string `json:"mime"`
	ChunkCount int    `json:"chunk_count"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toDocumentResponse(d *repository.Document) documentResponse {
	return documentResponse{
		DocID:      d.ID.String(),
		Title:      d.Title,
		Filename:   d.Filename,
		Mime:       d.Mime,
		ChunkCount: d.ChunkCount,
		Status:     d.Status,
		CreatedAt:  d.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:  d.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (h *Handlers) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	docs, total, err := h.docs.List(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = toDocumentResponse(d)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"documents": out,
		"total":     total,
	})
}

func (h *Handlers) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handlers) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.docs.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "doc_id": id.String()})
}

func (h *Handlers) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.tracker.GetSnapshot())
}

func (h *Handlers) handleClearAnalytics(w http.ResponseWriter, r *http.Request) {
	h.tracker.Clear()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handlers) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ask.CacheStats())
}

func (h *Handlers) handleClearCache(w http.ResponseWriter, r *http.Request) {
	h.ask.ClearCache()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// respondServiceError maps service errors to HTTP status codes.
func (h *Handlers) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNoResults):
		respondJSON(w, http.StatusNotFound, map[string]any{
			"error":       "no relevant information found for this query",
			"suggestions": noResultsSuggestions,
		})
	case errors.Is(err, service.ErrUnsupportedType):
		respondError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrEmptyDocument):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, "document not found")
	default:
		h.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

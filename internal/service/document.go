package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/knoguchi/kbase/internal/analytics"
	"github.com/knoguchi/kbase/internal/embedder"
	"github.com/knoguchi/kbase/internal/ingestion"
	"github.com/knoguchi/kbase/internal/repository"
)

// ErrUnsupportedType is returned for uploads that are not plain text or markdown.
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrEmptyDocument is returned when an upload yields no indexable text.
var ErrEmptyDocument = errors.New("document contains no indexable text")

var mimeByExtension = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
}

// Document statuses.
const (
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// UploadResult reports the outcome of a document upload.
type UploadResult struct {
	DocID            string  `json:"doc_id"`
	Filename         string  `json:"filename"`
	Chunks           int     `json:"chunks"`
	Status           string  `json:"status"`
	Duplicate        bool    `json:"duplicate"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// DocumentService handles document ingestion and lifecycle: chunking,
// embedding, persistence, and deletion.
type DocumentService struct {
	docs    repository.DocumentRepository
	chunks  repository.ChunkRepository
	embed   embedder.Embedder
	chunker *ingestion.Chunker
	tracker *analytics.Tracker
	logger  *slog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(docs repository.DocumentRepository, chunks repository.ChunkRepository, embed embedder.Embedder, chunker *ingestion.Chunker, tracker *analytics.Tracker, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		docs:    docs,
		chunks:  chunks,
		embed:   embed,
		chunker: chunker,
		tracker: tracker,
		logger:  logger,
	}
}

// Upload ingests a text or markdown document: dedup by content hash, chunk,
// embed, and persist. A re-upload of identical content returns the existing
// document without reprocessing.
func (s *DocumentService) Upload(ctx context.Context, filename string, content []byte) (*UploadResult, error) {
	start := time.Now()

	ext := strings.ToLower(filepath.Ext(filename))
	mime, ok := mimeByExtension[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s (only .txt and .md are accepted)", ErrUnsupportedType, ext)
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.docs.GetByHash(ctx, hash)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if existing != nil {
		s.logger.Info("duplicate upload", "filename", filename, "doc_id", existing.ID)
		result := &UploadResult{
			DocID:            existing.ID.String(),
			Filename:         existing.Filename,
			Chunks:           existing.ChunkCount,
			Status:           existing.Status,
			Duplicate:        true,
			ProcessingTimeMS: msSince(start),
		}
		s.logUpload(filename, len(content), result.ProcessingTimeMS, existing.ChunkCount, true)
		return result, nil
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, ErrEmptyDocument
	}

	pieces := s.chunker.Chunk(text)
	if len(pieces) == 0 {
		return nil, ErrEmptyDocument
	}

	doc := &repository.Document{
		ID:          uuid.New(),
		Title:       titleFromFilename(filename),
		Filename:    filename,
		Mime:        mime,
		ContentHash: hash,
		Status:      StatusProcessing,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	embeddings, err := s.embed.EmbedBatch(ctx, texts)
	if err != nil {
		s.markFailed(ctx, doc)
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(pieces) {
		s.markFailed(ctx, doc)
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(pieces))
	}
	for i, vec := range embeddings {
		if len(vec) != s.embed.Dimension() {
			s.markFailed(ctx, doc)
			return nil, fmt.Errorf("chunk %d: embedding dimension %d, want %d", i, len(vec), s.embed.Dimension())
		}
	}

	records := make([]*repository.Chunk, len(pieces))
	for i, p := range pieces {
		records[i] = &repository.Chunk{
			DocID:      doc.ID,
			ChunkIndex: p.Index,
			Text:       p.Text,
			Embedding:  embeddings[i],
		}
	}
	if err := s.chunks.CreateChunks(ctx, records); err != nil {
		s.markFailed(ctx, doc)
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	doc.ChunkCount = len(records)
	doc.Status = StatusProcessed
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to finalize document: %w", err)
	}

	elapsed := msSince(start)
	s.logger.Info("document ingested",
		"doc_id", doc.ID,
		"filename", filename,
		"chunks", len(records),
		"duration_ms", elapsed)
	s.logUpload(filename, len(content), elapsed, len(records), false)

	return &UploadResult{
		DocID:            doc.ID.String(),
		Filename:         filename,
		Chunks:           len(records),
		Status:           doc.Status,
		ProcessingTimeMS: elapsed,
	}, nil
}

// Get returns a document by ID.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*repository.Document, error) {
	return s.docs.GetByID(ctx, id)
}

// List returns a page of documents with the total count.
func (s *DocumentService) List(ctx context.Context, limit, offset int) ([]*repository.Document, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.List(ctx, limit, offset)
}

// Delete removes a document and all of its chunks.
func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.chunks.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.logger.Info("document deleted", "doc_id", id)
	return nil
}

func (s *DocumentService) markFailed(ctx context.Context, doc *repository.Document) {
	doc.Status = StatusFailed
	if err := s.docs.Update(ctx, doc); err != nil {
		s.logger.Warn("failed to mark document failed", "doc_id", doc.ID, "error", err)
	}
}

func (s *DocumentService) logUpload(filename string, sizeBytes int, elapsed float64, numChunks int, duplicate bool) {
	if s.tracker == nil {
		return
	}
	s.tracker.LogUpload(analytics.UploadEvent{
		Filename:         filename,
		FileSizeKB:       float64(sizeBytes) / 1024,
		ProcessingTimeMS: elapsed,
		NumChunks:        numChunks,
		IsDuplicate:      duplicate,
	})
}

func titleFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.TrimSpace(base)
	if base == "" {
		return filename
	}
	return base
}

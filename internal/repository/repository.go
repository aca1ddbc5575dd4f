// Package repository defines domain models and data access interfaces for documents and chunks.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Document represents an ingested document
type Document struct {
	ID          uuid.UUID
	Title       string
	Filename    string
	Mime        string
	ContentHash string
	ChunkCount  int
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is the immutable retrieval unit: a piece of document text with its
// embedding vector plus denormalized document fields for display. The search
// pipeline only reads chunks; ownership stays with the storage layer.
type Chunk struct {
	ID         int64
	DocID      uuid.UUID
	ChunkIndex int
	Page       *int
	Text       string
	Embedding  []float32
	Title      string
	Filename   string
}

// SimilarityMatch pairs a chunk with its cosine similarity to a query vector,
// as computed by the index-assisted nearest-neighbor path.
type SimilarityMatch struct {
	Chunk Chunk
	Score float64
}

// DocumentRepository defines operations for document persistence
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByHash(ctx context.Context, hash string) (*Document, error)
	List(ctx context.Context, limit, offset int) ([]*Document, int, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChunkRepository defines operations for chunk persistence and retrieval
type ChunkRepository interface {
	// CreateChunks inserts chunks with their embeddings
	CreateChunks(ctx context.Context, chunks []*Chunk) error

	// FetchCandidates returns all chunks, optionally filtered by document IDs.
	// Used to build the per-query BM25 index and to score the hybrid batch.
	FetchCandidates(ctx context.Context, docIDs []uuid.UUID) ([]Chunk, error)

	// TopKBySimilarity returns the k chunks nearest to the query embedding in
	// descending cosine similarity, optionally filtered by document IDs.
	TopKBySimilarity(ctx context.Context, embedding []float32, k int, docIDs []uuid.UUID) ([]SimilarityMatch, error)

	// DeleteByDocument removes all chunks belonging to a document
	DeleteByDocument(ctx context.Context, docID uuid.UUID) error
}

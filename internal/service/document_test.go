package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/knoguchi/kbase/internal/analytics"
	"github.com/knoguchi/kbase/internal/ingestion"
	"github.com/knoguchi/kbase/internal/repository"
)

type stubDocRepo struct {
	byID   map[uuid.UUID]*repository.Document
	byHash map[string]*repository.Document

	deleted []uuid.UUID
}

func newStubDocRepo() *stubDocRepo {
	return &stubDocRepo{
		byID:   make(map[uuid.UUID]*repository.Document),
		byHash: make(map[string]*repository.Document),
	}
}

func (s *stubDocRepo) Create(ctx context.Context, doc *repository.Document) error {
	cp := *doc
	s.byID[doc.ID] = &cp
	s.byHash[doc.ContentHash] = &cp
	return nil
}

func (s *stubDocRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Document, error) {
	doc, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (s *stubDocRepo) GetByHash(ctx context.Context, hash string) (*repository.Document, error) {
	doc, ok := s.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (s *stubDocRepo) List(ctx context.Context, limit, offset int) ([]*repository.Document, int, error) {
	var docs []*repository.Document
	for _, d := range s.byID {
		docs = append(docs, d)
	}
	return docs, len(docs), nil
}

func (s *stubDocRepo) Update(ctx context.Context, doc *repository.Document) error {
	cp := *doc
	s.byID[doc.ID] = &cp
	s.byHash[doc.ContentHash] = &cp
	return nil
}

func (s *stubDocRepo) Delete(ctx context.Context, id uuid.UUID) error {
	doc, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.byHash, doc.ContentHash)
	delete(s.byID, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type recordingChunkRepo struct {
	stubChunkRepo
	created        []*repository.Chunk
	deletedDocs    []uuid.UUID
	createChunkErr error
}

func (r *recordingChunkRepo) CreateChunks(ctx context.Context, chunks []*repository.Chunk) error {
	if r.createChunkErr != nil {
		return r.createChunkErr
	}
	r.created = append(r.created, chunks...)
	return nil
}

func (r *recordingChunkRepo) DeleteByDocument(ctx context.Context, docID uuid.UUID) error {
	r.deletedDocs = append(r.deletedDocs, docID)
	return nil
}

func documentFixture() (*DocumentService, *stubDocRepo, *recordingChunkRepo) {
	docs := newStubDocRepo()
	chunks := &recordingChunkRepo{}
	svc := NewDocumentService(docs, chunks, stubEmbedder{},
		ingestion.NewChunker(ingestion.Config{TargetSize: 20, Overlap: 4}),
		analytics.NewTracker(), nil)
	return svc, docs, chunks
}

func TestUpload_IngestsTextDocument(t *testing.T) {
	svc, docs, chunks := documentFixture()

	content := []byte("First sentence about storage. Second sentence about retrieval. Third sentence about ranking.")
	result, err := svc.Upload(context.Background(), "notes.txt", content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Duplicate {
		t.Error("fresh content must not report duplicate")
	}
	if result.Status != StatusProcessed {
		t.Errorf("expected status %q, got %q", StatusProcessed, result.Status)
	}
	if result.Chunks == 0 || len(chunks.created) != result.Chunks {
		t.Errorf("expected %d chunks persisted, got %d", result.Chunks, len(chunks.created))
	}
	for i, c := range chunks.created {
		if len(c.Embedding) != 2 {
			t.Errorf("chunk %d missing embedding", i)
		}
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
	}

	id, err := uuid.Parse(result.DocID)
	if err != nil {
		t.Fatalf("invalid doc id %q", result.DocID)
	}
	stored, err := docs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	if stored.Title != "notes" {
		t.Errorf("expected title derived from filename, got %q", stored.Title)
	}
	if stored.Mime != "text/plain" {
		t.Errorf("expected text/plain, got %q", stored.Mime)
	}
	if stored.ChunkCount != result.Chunks {
		t.Errorf("chunk count mismatch: %d vs %d", stored.ChunkCount, result.Chunks)
	}
}

func TestUpload_DuplicateContent(t *testing.T) {
	svc, _, chunks := documentFixture()

	content := []byte("Identical content uploaded twice.")
	first, err := svc.Upload(context.Background(), "a.txt", content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstChunks := len(chunks.created)

	second, err := svc.Upload(context.Background(), "b.txt", content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !second.Duplicate {
		t.Error("identical content must report duplicate")
	}
	if second.DocID != first.DocID {
		t.Errorf("duplicate should return the existing doc, got %s vs %s", second.DocID, first.DocID)
	}
	if len(chunks.created) != firstChunks {
		t.Error("duplicate upload must not reprocess chunks")
	}
}

func TestUpload_UnsupportedType(t *testing.T) {
	svc, _, _ := documentFixture()

	_, err := svc.Upload(context.Background(), "report.pdf", []byte("%PDF-1.4"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestUpload_EmptyDocument(t *testing.T) {
	svc, _, _ := documentFixture()

	_, err := svc.Upload(context.Background(), "empty.txt", []byte("   \n  "))
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestUpload_MarkdownAccepted(t *testing.T) {
	svc, docs, _ := documentFixture()

	result, err := svc.Upload(context.Background(), "guide.md", []byte("# Title\n\nSome markdown body text."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, _ := uuid.Parse(result.DocID)
	stored, _ := docs.GetByID(context.Background(), id)
	if stored.Mime != "text/markdown" {
		t.Errorf("expected text/markdown, got %q", stored.Mime)
	}
}

func TestDelete_RemovesChunksAndDocument(t *testing.T) {
	svc, docs, chunks := documentFixture()

	result, err := svc.Upload(context.Background(), "a.txt", []byte("Some content to delete."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, _ := uuid.Parse(result.DocID)

	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(chunks.deletedDocs) != 1 || chunks.deletedDocs[0] != id {
		t.Error("expected chunks deleted for the document")
	}
	if _, err := docs.GetByID(context.Background(), id); !errors.Is(err, repository.ErrNotFound) {
		t.Error("expected document removed")
	}
}

func TestDelete_MissingDocument(t *testing.T) {
	svc, _, chunks := documentFixture()

	err := svc.Delete(context.Background(), uuid.New())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(chunks.deletedDocs) != 0 {
		t.Error("missing document must not trigger chunk deletion")
	}
}

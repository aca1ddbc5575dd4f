package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/knoguchi/kbase/internal/repository"
)

// ChunkRepo implements repository.ChunkRepository on a pgvector-enabled table.
type ChunkRepo struct {
	db *DB
}

// NewChunkRepo creates a new chunk repository
func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// CreateChunks inserts chunks with their embeddings in a single transaction
func (r *ChunkRepo) CreateChunks(ctx context.Context, chunks []*repository.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO chunks (doc_id, chunk_index, page, text, embedding)
		VALUES ($1, $2, $3, $4, $5::vector)
		RETURNING id
	`
	for _, chunk := range chunks {
		err := tx.QueryRow(ctx, query,
			chunk.DocID, chunk.ChunkIndex, chunk.Page, chunk.Text,
			formatVector(chunk.Embedding),
		).Scan(&chunk.ID)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// FetchCandidates returns all chunks joined with their document metadata,
// optionally filtered by document IDs. Embeddings are included so callers can
// score the batch without a second round trip.
func (r *ChunkRepo) FetchCandidates(ctx context.Context, docIDs []uuid.UUID) ([]repository.Chunk, error) {
	query := `
		SELECT c.id, c.doc_id, c.chunk_index, c.page, c.text, c.embedding::text, d.title, d.filename
		FROM chunks c
		JOIN documents d ON c.doc_id = d.doc_id
	`
	var args []any
	if len(docIDs) > 0 {
		query += ` WHERE c.doc_id = ANY($1)`
		args = append(args, docIDs)
	}
	query += ` ORDER BY c.doc_id, c.chunk_index`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// TopKBySimilarity runs an index-assisted nearest-neighbor query ordered by
// cosine distance. Scores are clamped to [0,1] to match the in-process
// similarity definition.
func (r *ChunkRepo) TopKBySimilarity(ctx context.Context, embedding []float32, k int, docIDs []uuid.UUID) ([]repository.SimilarityMatch, error) {
	vec := formatVector(embedding)

	query := `
		SELECT c.id, c.doc_id, c.chunk_index, c.page, c.text, c.embedding::text, d.title, d.filename,
		       1 - (c.embedding <=> $1::vector) AS score
		FROM chunks c
		JOIN documents d ON c.doc_id = d.doc_id
	`
	args := []any{vec}
	if len(docIDs) > 0 {
		query += ` WHERE c.doc_id = ANY($2)`
		args = append(args, docIDs)
	}
	query += fmt.Sprintf(` ORDER BY c.embedding <=> $1::vector LIMIT %d`, k)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search by similarity: %w", err)
	}
	defer rows.Close()

	var matches []repository.SimilarityMatch
	for rows.Next() {
		var chunk repository.Chunk
		var embText string
		var score float64
		if err := rows.Scan(
			&chunk.ID, &chunk.DocID, &chunk.ChunkIndex, &chunk.Page,
			&chunk.Text, &embText, &chunk.Title, &chunk.Filename, &score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan similarity match: %w", err)
		}
		chunk.Embedding, err = parseVector(embText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedding for chunk %d: %w", chunk.ID, err)
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		matches = append(matches, repository.SimilarityMatch{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate similarity matches: %w", err)
	}

	return matches, nil
}

// DeleteByDocument removes all chunks belonging to a document
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func scanChunks(rows pgx.Rows) ([]repository.Chunk, error) {
	var chunks []repository.Chunk
	for rows.Next() {
		var chunk repository.Chunk
		var embText string
		if err := rows.Scan(
			&chunk.ID, &chunk.DocID, &chunk.ChunkIndex, &chunk.Page,
			&chunk.Text, &embText, &chunk.Title, &chunk.Filename,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		embedding, err := parseVector(embText)
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedding for chunk %d: %w", chunk.ID, err)
		}
		chunk.Embedding = embedding
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return chunks, nil
}

// formatVector renders a float slice as a pgvector text literal: [v1,v2,...]
func formatVector(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// parseVector parses a pgvector text literal back into a float slice
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", truncate(s, 32))
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return nil, nil
	}

	parts := strings.Split(body, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %w", p, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

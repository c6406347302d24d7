package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/s4nfs/mediscribe/pkg/store"
)

// SemanticIndexImpl implements [store.SemanticIndex] backed by a pgvector
// HNSW index over transcript embeddings.
//
// Obtain one via [Store.Semantic] rather than constructing directly.
// All methods are safe for concurrent use.
type SemanticIndexImpl struct {
	pool *pgxpool.Pool
}

// Index upserts a consultation's embedding entry. A consultation re-indexed
// after finalization completely replaces its previous entry.
func (s *SemanticIndexImpl) Index(ctx context.Context, entry store.IndexEntry) error {
	const q = `
		INSERT INTO transcript_index (consultation_id, user_id, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (consultation_id) DO UPDATE SET
		    user_id   = EXCLUDED.user_id,
		    content   = EXCLUDED.content,
		    embedding = EXCLUDED.embedding`

	vec := pgvector.NewVector(entry.Embedding)
	_, err := s.pool.Exec(ctx, q, entry.ConsultationID, entry.UserID, entry.Content, vec)
	if err != nil {
		return fmt.Errorf("semantic index: index consultation: %w", err)
	}
	return nil
}

// Search returns the topK entries of the user's history closest to the query
// embedding, ordered by ascending cosine distance.
func (s *SemanticIndexImpl) Search(ctx context.Context, userID string, embedding []float32, topK int) ([]store.SearchHit, error) {
	const q = `
		SELECT consultation_id, content, embedding <=> $1 AS distance, created_at
		FROM   transcript_index
		WHERE  user_id = $2
		ORDER BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), userID, topK)
	if err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}
	defer rows.Close()

	var out []store.SearchHit
	for rows.Next() {
		var hit store.SearchHit
		if err := rows.Scan(&hit.ConsultationID, &hit.Content, &hit.Distance, &hit.CreatedAt); err != nil {
			return nil, fmt.Errorf("semantic index: search: %w", err)
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}
	return out, nil
}

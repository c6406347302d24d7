package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/s4nfs/mediscribe/pkg/store"
)

// DocumentsImpl implements [store.Documents] on the shared pool.
// Obtain one via [Store.Documents] rather than constructing directly.
type DocumentsImpl struct {
	pool *pgxpool.Pool
}

// Create inserts a generated document and returns its ID.
func (d *DocumentsImpl) Create(ctx context.Context, doc store.GeneratedDocument) (string, error) {
	const q = `
		INSERT INTO generated_documents (consultation_id, user_id, kind, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id string
	err := d.pool.QueryRow(ctx, q, doc.ConsultationID, doc.UserID, doc.Kind, doc.Content).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("documents: create: %w", err)
	}
	return id, nil
}

// ListByConsultation returns a consultation's documents, newest first.
func (d *DocumentsImpl) ListByConsultation(ctx context.Context, userID, consultationID string) ([]store.GeneratedDocument, error) {
	const q = `
		SELECT id, consultation_id, user_id, kind, content, created_at
		FROM   generated_documents
		WHERE  consultation_id = $1 AND user_id = $2
		ORDER BY created_at DESC`

	rows, err := d.pool.Query(ctx, q, consultationID, userID)
	if err != nil {
		return nil, fmt.Errorf("documents: list: %w", err)
	}
	defer rows.Close()

	var out []store.GeneratedDocument
	for rows.Next() {
		var doc store.GeneratedDocument
		if err := rows.Scan(&doc.ID, &doc.ConsultationID, &doc.UserID, &doc.Kind, &doc.Content, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("documents: list: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documents: list: %w", err)
	}
	return out, nil
}

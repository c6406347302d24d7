package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/s4nfs/mediscribe/pkg/store"
)

// ConsultationsImpl implements [store.Consultations] on the shared pool.
// Obtain one via [Store.Consultations] rather than constructing directly.
type ConsultationsImpl struct {
	pool *pgxpool.Pool
}

// Create inserts a new in-progress consultation and returns its ID.
func (c *ConsultationsImpl) Create(ctx context.Context, userID, patientID, ctype string) (string, error) {
	const q = `
		INSERT INTO consultations (user_id, patient_id, type)
		VALUES ($1, $2, $3)
		RETURNING id`

	var id string
	if err := c.pool.QueryRow(ctx, q, userID, patientID, ctype).Scan(&id); err != nil {
		return "", fmt.Errorf("consultations: create: %w", err)
	}
	return id, nil
}

// Get returns one consultation by ID, joined with the patient name.
func (c *ConsultationsImpl) Get(ctx context.Context, userID, id string) (store.Consultation, error) {
	const q = `
		SELECT c.id, c.user_id, c.patient_id, p.name, c.type, c.status,
		       c.transcript, c.duration_seconds, c.last_saved_at,
		       c.created_at, c.updated_at
		FROM   consultations c
		JOIN   patients p ON p.id = c.patient_id
		WHERE  c.id = $1 AND c.user_id = $2`

	row := c.pool.QueryRow(ctx, q, id, userID)
	out, err := scanConsultation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Consultation{}, fmt.Errorf("consultations: get %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.Consultation{}, fmt.Errorf("consultations: get %s: %w", id, err)
	}
	return out, nil
}

// List returns the user's consultations, most recent first.
func (c *ConsultationsImpl) List(ctx context.Context, userID string, limit, offset int) ([]store.Consultation, error) {
	const q = `
		SELECT c.id, c.user_id, c.patient_id, p.name, c.type, c.status,
		       c.transcript, c.duration_seconds, c.last_saved_at,
		       c.created_at, c.updated_at
		FROM   consultations c
		JOIN   patients p ON p.id = c.patient_id
		WHERE  c.user_id = $1
		ORDER BY c.created_at DESC
		LIMIT  $2 OFFSET $3`

	rows, err := c.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("consultations: list: %w", err)
	}
	defer rows.Close()

	var out []store.Consultation
	for rows.Next() {
		cons, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("consultations: list: %w", err)
		}
		out = append(out, cons)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("consultations: list: %w", err)
	}
	return out, nil
}

// Save persists an autosave snapshot and stamps last_saved_at.
func (c *ConsultationsImpl) Save(ctx context.Context, id string, snap store.Snapshot) error {
	const q = `
		UPDATE consultations
		SET    transcript = $2, duration_seconds = $3,
		       last_saved_at = now(), updated_at = now()
		WHERE  id = $1`

	tag, err := c.pool.Exec(ctx, q, id, snap.Transcript, snap.DurationSeconds)
	if err != nil {
		return fmt.Errorf("consultations: save %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("consultations: save %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Complete persists the final snapshot and marks the consultation completed.
func (c *ConsultationsImpl) Complete(ctx context.Context, id string, snap store.Snapshot) error {
	const q = `
		UPDATE consultations
		SET    transcript = $2, duration_seconds = $3, status = $4,
		       last_saved_at = now(), updated_at = now()
		WHERE  id = $1`

	tag, err := c.pool.Exec(ctx, q, id, snap.Transcript, snap.DurationSeconds, store.StatusCompleted)
	if err != nil {
		return fmt.Errorf("consultations: complete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("consultations: complete %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Delete removes a consultation. Dependent documents and index entries are
// removed by ON DELETE CASCADE.
func (c *ConsultationsImpl) Delete(ctx context.Context, userID, id string) error {
	const q = `DELETE FROM consultations WHERE id = $1 AND user_id = $2`

	tag, err := c.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("consultations: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("consultations: delete %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func scanConsultation(row pgx.Row) (store.Consultation, error) {
	var c store.Consultation
	var lastSaved sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.PatientID, &c.PatientName, &c.Type,
		&c.Status, &c.Transcript, &c.DurationSeconds, &lastSaved,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return store.Consultation{}, err
	}
	if lastSaved.Valid {
		c.LastSavedAt = lastSaved.Time
	}
	return c, nil
}

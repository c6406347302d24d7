package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/s4nfs/mediscribe/pkg/store"
)

// PatientsImpl implements [store.Patients] on the shared pool.
// Obtain one via [Store.Patients] rather than constructing directly.
type PatientsImpl struct {
	pool *pgxpool.Pool
}

// Create inserts a new patient and returns its ID.
func (p *PatientsImpl) Create(ctx context.Context, userID, name string) (string, error) {
	const q = `
		INSERT INTO patients (user_id, name)
		VALUES ($1, $2)
		RETURNING id`

	var id string
	if err := p.pool.QueryRow(ctx, q, userID, name).Scan(&id); err != nil {
		return "", fmt.Errorf("patients: create: %w", err)
	}
	return id, nil
}

// Get returns one patient by ID.
func (p *PatientsImpl) Get(ctx context.Context, userID, id string) (store.Patient, error) {
	const q = `
		SELECT id, user_id, name, created_at
		FROM   patients
		WHERE  id = $1 AND user_id = $2`

	var out store.Patient
	err := p.pool.QueryRow(ctx, q, id, userID).Scan(&out.ID, &out.UserID, &out.Name, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Patient{}, fmt.Errorf("patients: get %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.Patient{}, fmt.Errorf("patients: get %s: %w", id, err)
	}
	return out, nil
}

// ListByUser returns all of the user's patients ordered by name.
func (p *PatientsImpl) ListByUser(ctx context.Context, userID string) ([]store.Patient, error) {
	const q = `
		SELECT id, user_id, name, created_at
		FROM   patients
		WHERE  user_id = $1
		ORDER BY name`

	rows, err := p.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("patients: list: %w", err)
	}
	defer rows.Close()

	var out []store.Patient
	for rows.Next() {
		var pt store.Patient
		if err := rows.Scan(&pt.ID, &pt.UserID, &pt.Name, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("patients: list: %w", err)
		}
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: list: %w", err)
	}
	return out, nil
}

// Package postgres provides the PostgreSQL-backed implementation of the
// store interfaces (consultations, patients, generated documents, and the
// transcript embedding index).
//
// All sub-stores share a single [pgxpool.Pool]. The pgvector extension must
// be available in the target database; [Migrate] installs it automatically
// via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//
//	id, _ := st.Consultations().Create(ctx, userID, patientID, "general")
//	_ = st.Consultations().Save(ctx, id, snap)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlPatients = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS patients (
    id          TEXT         PRIMARY KEY DEFAULT gen_random_uuid()::text,
    user_id     TEXT         NOT NULL,
    name        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_patients_user_id ON patients (user_id);
`

const ddlConsultations = `
CREATE TABLE IF NOT EXISTS consultations (
    id               TEXT         PRIMARY KEY DEFAULT gen_random_uuid()::text,
    user_id          TEXT         NOT NULL,
    patient_id       TEXT         NOT NULL REFERENCES patients (id),
    type             TEXT         NOT NULL,
    status           TEXT         NOT NULL DEFAULT 'in-progress',
    transcript       TEXT         NOT NULL DEFAULT '',
    duration_seconds INTEGER      NOT NULL DEFAULT 0,
    last_saved_at    TIMESTAMPTZ,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_consultations_user_id
    ON consultations (user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_consultations_patient_id
    ON consultations (patient_id);
`

const ddlDocuments = `
CREATE TABLE IF NOT EXISTS generated_documents (
    id               TEXT         PRIMARY KEY DEFAULT gen_random_uuid()::text,
    consultation_id  TEXT         NOT NULL REFERENCES consultations (id) ON DELETE CASCADE,
    user_id          TEXT         NOT NULL,
    kind             TEXT         NOT NULL,
    content          TEXT         NOT NULL,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_consultation
    ON generated_documents (consultation_id, created_at DESC);
`

// ddlIndex returns the embedding index DDL with the vector dimension
// substituted. The dimension is baked into the column type at schema
// creation time.
func ddlIndex(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS transcript_index (
    consultation_id  TEXT         PRIMARY KEY REFERENCES consultations (id) ON DELETE CASCADE,
    user_id          TEXT         NOT NULL,
    content          TEXT         NOT NULL,
    embedding        vector(%d),
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_index_user
    ON transcript_index (user_id);

CREATE INDEX IF NOT EXISTS idx_transcript_index_embedding
    ON transcript_index USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates all tables, indexes, and extensions the store requires.
// Every statement is idempotent, so Migrate is safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	ddls := []struct {
		name string
		sql  string
	}{
		{"patients", ddlPatients},
		{"consultations", ddlConsultations},
		{"documents", ddlDocuments},
		{"transcript index", ddlIndex(embeddingDimensions)},
	}
	for _, d := range ddls {
		if _, err := pool.Exec(ctx, d.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", d.name, err)
		}
	}
	return nil
}

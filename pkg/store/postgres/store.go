package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/s4nfs/mediscribe/pkg/store"
)

// Compile-time interface checks.
var (
	_ store.Consultations = (*ConsultationsImpl)(nil)
	_ store.Patients      = (*PatientsImpl)(nil)
	_ store.Documents     = (*DocumentsImpl)(nil)
	_ store.SemanticIndex = (*SemanticIndexImpl)(nil)
)

// Store is the PostgreSQL-backed persistence layer. It holds a single
// [pgxpool.Pool] shared by the sub-stores:
//
//   - [Store.Consultations] implements [store.Consultations]
//   - [Store.Patients] implements [store.Patients]
//   - [Store.Documents] implements [store.Documents]
//   - [Store.Semantic] implements [store.SemanticIndex]
//
// All operations are safe for concurrent use.
type Store struct {
	pool          *pgxpool.Pool
	consultations *ConsultationsImpl
	patients      *PatientsImpl
	documents     *DocumentsImpl
	semantic      *SemanticIndexImpl
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to ensure
// all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used for history indexing (e.g., 1536 for OpenAI text-embedding-3-small).
// Changing this value after the first migration requires a manual schema
// change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so embedding columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:          pool,
		consultations: &ConsultationsImpl{pool: pool},
		patients:      &PatientsImpl{pool: pool},
		documents:     &DocumentsImpl{pool: pool},
		semantic:      &SemanticIndexImpl{pool: pool},
	}, nil
}

// Consultations returns the consultation store.
func (s *Store) Consultations() *ConsultationsImpl { return s.consultations }

// Patients returns the patient store.
func (s *Store) Patients() *PatientsImpl { return s.patients }

// Documents returns the generated-document store.
func (s *Store) Documents() *DocumentsImpl { return s.documents }

// Semantic returns the transcript embedding index.
func (s *Store) Semantic() *SemanticIndexImpl { return s.semantic }

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

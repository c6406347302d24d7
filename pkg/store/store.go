// Package store defines the persistence model for consultations, patients,
// and generated documents, plus the interfaces backends implement.
//
// The canonical backend is the PostgreSQL implementation in the postgres
// subpackage; the mock subpackage provides in-memory test doubles.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist or is not visible to
// the requesting user.
var ErrNotFound = errors.New("store: not found")

// Consultation status values.
const (
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Patient is a person consultations are recorded for. Patients are scoped to
// the clinician (UserID) who created them.
type Patient struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Consultation is one recording session and its reconciled transcript.
// Transcript and DurationSeconds advance through periodic saves while the
// session runs; Status flips to completed exactly once.
type Consultation struct {
	ID              string
	UserID          string
	PatientID       string
	PatientName     string
	Type            string
	Status          string
	Transcript      string
	DurationSeconds int
	LastSavedAt     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Snapshot is the periodically persisted portion of an in-progress
// consultation.
type Snapshot struct {
	Transcript      string
	DurationSeconds int
}

// GeneratedDocument is one clinical document produced from a consultation
// transcript, stored as the raw generated content plus its kind.
type GeneratedDocument struct {
	ID             string
	ConsultationID string
	UserID         string
	Kind           string
	Content        string
	CreatedAt      time.Time
}

// IndexEntry is one embedded transcript indexed for semantic history search.
type IndexEntry struct {
	ConsultationID string
	UserID         string
	Content        string
	Embedding      []float32
	CreatedAt      time.Time
}

// SearchHit is one semantic search result, ordered by ascending cosine
// distance.
type SearchHit struct {
	ConsultationID string
	Content        string
	Distance       float64
	CreatedAt      time.Time
}

// Consultations persists consultation records. All reads are scoped by
// userID; a consultation owned by another user reads as ErrNotFound.
type Consultations interface {
	// Create inserts a new in-progress consultation and returns its ID.
	Create(ctx context.Context, userID, patientID, ctype string) (string, error)

	// Get returns one consultation by ID.
	Get(ctx context.Context, userID, id string) (Consultation, error)

	// List returns the user's consultations, most recent first.
	List(ctx context.Context, userID string, limit, offset int) ([]Consultation, error)

	// Save persists an autosave snapshot and stamps LastSavedAt.
	Save(ctx context.Context, id string, snap Snapshot) error

	// Complete persists the final snapshot and marks the consultation
	// completed. Completing an already completed consultation only updates
	// the snapshot.
	Complete(ctx context.Context, id string, snap Snapshot) error

	// Delete removes a consultation and its dependent rows.
	Delete(ctx context.Context, userID, id string) error
}

// Patients persists patient records scoped to a user.
type Patients interface {
	// Create inserts a new patient and returns its ID.
	Create(ctx context.Context, userID, name string) (string, error)

	// Get returns one patient by ID.
	Get(ctx context.Context, userID, id string) (Patient, error)

	// ListByUser returns all of the user's patients, for name matching and
	// selection lists.
	ListByUser(ctx context.Context, userID string) ([]Patient, error)
}

// Documents persists generated clinical documents.
type Documents interface {
	// Create inserts a generated document and returns its ID.
	Create(ctx context.Context, doc GeneratedDocument) (string, error)

	// ListByConsultation returns a consultation's documents, newest first.
	ListByConsultation(ctx context.Context, userID, consultationID string) ([]GeneratedDocument, error)
}

// SemanticIndex stores transcript embeddings and answers nearest-neighbour
// queries over a user's history.
type SemanticIndex interface {
	// Index upserts the embedding entry for a consultation.
	Index(ctx context.Context, entry IndexEntry) error

	// Search returns the topK entries closest to the query embedding.
	Search(ctx context.Context, userID string, embedding []float32, topK int) ([]SearchHit, error)
}

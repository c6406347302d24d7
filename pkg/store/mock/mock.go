// Package mock provides in-memory test doubles for the store interfaces.
package mock

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/s4nfs/mediscribe/pkg/store"
)

// Store is an in-memory implementation of all store interfaces. Zero value
// is not usable; create with New. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	nextID        int
	patients      map[string]store.Patient
	consultations map[string]store.Consultation
	documents     map[string]store.GeneratedDocument
	index         map[string]store.IndexEntry

	// CreateErr, SaveErr, CompleteErr force failures from the matching
	// consultation methods when non-nil.
	CreateErr   error
	SaveErr     error
	CompleteErr error

	// SaveCalls records every consultation Save invocation in order.
	SaveCalls []SaveCall
}

// SaveCall records one Consultations.Save invocation.
type SaveCall struct {
	ID   string
	Snap store.Snapshot
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		patients:      make(map[string]store.Patient),
		consultations: make(map[string]store.Consultation),
		documents:     make(map[string]store.GeneratedDocument),
		index:         make(map[string]store.IndexEntry),
	}
}

func (s *Store) genID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// ---- store.Consultations ----

func (s *Store) Create(ctx context.Context, userID, patientID, ctype string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	id := s.genID("cons")
	name := ""
	if p, ok := s.patients[patientID]; ok {
		name = p.Name
	}
	now := time.Now()
	s.consultations[id] = store.Consultation{
		ID:          id,
		UserID:      userID,
		PatientID:   patientID,
		PatientName: name,
		Type:        ctype,
		Status:      store.StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (store.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok || c.UserID != userID {
		return store.Consultation{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) List(ctx context.Context, userID string, limit, offset int) ([]store.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Consultation
	for _, c := range s.consultations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, id string, snap store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls = append(s.SaveCalls, SaveCall{ID: id, Snap: snap})
	if s.SaveErr != nil {
		return s.SaveErr
	}
	c, ok := s.consultations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Transcript = snap.Transcript
	c.DurationSeconds = snap.DurationSeconds
	c.LastSavedAt = time.Now()
	c.UpdatedAt = c.LastSavedAt
	s.consultations[id] = c
	return nil
}

func (s *Store) Complete(ctx context.Context, id string, snap store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CompleteErr != nil {
		return s.CompleteErr
	}
	c, ok := s.consultations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Transcript = snap.Transcript
	c.DurationSeconds = snap.DurationSeconds
	c.Status = store.StatusCompleted
	c.LastSavedAt = time.Now()
	c.UpdatedAt = c.LastSavedAt
	s.consultations[id] = c
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.consultations, id)
	for did, d := range s.documents {
		if d.ConsultationID == id {
			delete(s.documents, did)
		}
	}
	delete(s.index, id)
	return nil
}

// ---- store.Patients ----

func (s *Store) CreatePatient(ctx context.Context, userID, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.genID("pat")
	s.patients[id] = store.Patient{ID: id, UserID: userID, Name: name, CreatedAt: time.Now()}
	return id, nil
}

func (s *Store) GetPatient(ctx context.Context, userID, id string) (store.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok || p.UserID != userID {
		return store.Patient{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]store.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Patient
	for _, p := range s.patients {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- store.Documents ----

func (s *Store) CreateDocument(ctx context.Context, doc store.GeneratedDocument) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.ID = s.genID("doc")
	doc.CreatedAt = time.Now()
	s.documents[doc.ID] = doc
	return doc.ID, nil
}

func (s *Store) ListByConsultation(ctx context.Context, userID, consultationID string) ([]store.GeneratedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.GeneratedDocument
	for _, d := range s.documents {
		if d.ConsultationID == consultationID && d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---- store.SemanticIndex ----

func (s *Store) Index(ctx context.Context, entry store.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.index[entry.ConsultationID] = entry
	return nil
}

func (s *Store) Search(ctx context.Context, userID string, embedding []float32, topK int) ([]store.SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.SearchHit
	for _, e := range s.index {
		if e.UserID != userID {
			continue
		}
		out = append(out, store.SearchHit{
			ConsultationID: e.ConsultationID,
			Content:        e.Content,
			Distance:       cosineDistance(embedding, e.Embedding),
			CreatedAt:      e.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Patients returns s as a store.Patients view.
// Saves returns a copy of the recorded consultation Save calls. Safe to call
// while other goroutines are writing.
func (s *Store) Saves() []SaveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SaveCall(nil), s.SaveCalls...)
}

func (s *Store) Patients() store.Patients { return patientsView{s} }

// Documents returns s as a store.Documents view.
func (s *Store) Documents() store.Documents { return documentsView{s} }

// patientsView exposes the patient methods under the interface names, which
// collide with the consultation methods on Store itself.
type patientsView struct{ s *Store }

func (v patientsView) Create(ctx context.Context, userID, name string) (string, error) {
	return v.s.CreatePatient(ctx, userID, name)
}

func (v patientsView) Get(ctx context.Context, userID, id string) (store.Patient, error) {
	return v.s.GetPatient(ctx, userID, id)
}

func (v patientsView) ListByUser(ctx context.Context, userID string) ([]store.Patient, error) {
	return v.s.ListByUser(ctx, userID)
}

type documentsView struct{ s *Store }

func (v documentsView) Create(ctx context.Context, doc store.GeneratedDocument) (string, error) {
	return v.s.CreateDocument(ctx, doc)
}

func (v documentsView) ListByConsultation(ctx context.Context, userID, consultationID string) ([]store.GeneratedDocument, error) {
	return v.s.ListByConsultation(ctx, userID, consultationID)
}

// Compile-time interface checks.
var (
	_ store.Consultations = (*Store)(nil)
	_ store.SemanticIndex = (*Store)(nil)
	_ store.Patients      = patientsView{}
	_ store.Documents     = documentsView{}
)

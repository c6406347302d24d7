package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/s4nfs/mediscribe/internal/observe"
	"github.com/s4nfs/mediscribe/pkg/store"
)

// consultationJSON is the wire shape of a consultation record.
type consultationJSON struct {
	ID              string `json:"id"`
	PatientID       string `json:"patient_id"`
	PatientName     string `json:"patient_name,omitempty"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	Transcript      string `json:"transcript,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	LastSavedAt     string `json:"last_saved_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toConsultationJSON(c store.Consultation) consultationJSON {
	out := consultationJSON{
		ID:              c.ID,
		PatientID:       c.PatientID,
		PatientName:     c.PatientName,
		Type:            c.Type,
		Status:          c.Status,
		Transcript:      c.Transcript,
		DurationSeconds: c.DurationSeconds,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       c.UpdatedAt.Format(time.RFC3339),
	}
	if !c.LastSavedAt.IsZero() {
		out.LastSavedAt = c.LastSavedAt.Format(time.RFC3339)
	}
	return out
}

func (s *Server) createConsultation(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		PatientID string `json:"patient_id"`
		Type      string `json:"type"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}
	if req.Type == "" {
		req.Type = "general-consult"
	}

	id, err := s.stores.Consultations.Create(r.Context(), userID, req.PatientID, req.Type)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) listConsultations(w http.ResponseWriter, r *http.Request, userID string) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	list, err := s.stores.Consultations.List(r.Context(), userID, limit, offset)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	out := make([]consultationJSON, 0, len(list))
	for _, c := range list {
		out = append(out, toConsultationJSON(c))
	}
	writeData(w, http.StatusOK, out)
}

func (s *Server) getConsultation(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := s.stores.Consultations.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toConsultationJSON(c))
}

func (s *Server) deleteConsultation(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.stores.Consultations.Delete(r.Context(), userID, r.PathValue("id")); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": r.PathValue("id")})
}

// autosaveConsultation persists an in-progress transcript snapshot.
func (s *Server) autosaveConsultation(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Transcript      string `json:"transcript"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := r.PathValue("id")
	// Ownership check before the unscoped write.
	if _, err := s.stores.Consultations.Get(r.Context(), userID, id); err != nil {
		s.storeError(w, r, err)
		return
	}

	start := time.Now()
	err := s.stores.Consultations.Save(r.Context(), id, store.Snapshot{
		Transcript:      req.Transcript,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		s.metrics.RecordAutosave(r.Context(), "error")
		s.storeError(w, r, err)
		return
	}
	s.metrics.RecordAutosave(r.Context(), "ok")
	s.metrics.AutosaveDuration.Record(r.Context(), time.Since(start).Seconds())
	writeData(w, http.StatusOK, map[string]string{"id": id})
}

// finalizeConsultation completes the consultation and, when an embedder is
// configured, indexes the transcript for history search. Indexing failure
// does not fail the request; the record is already completed.
func (s *Server) finalizeConsultation(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Transcript      string `json:"transcript"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := r.PathValue("id")
	if _, err := s.stores.Consultations.Get(r.Context(), userID, id); err != nil {
		s.storeError(w, r, err)
		return
	}

	err := s.stores.Consultations.Complete(r.Context(), id, store.Snapshot{
		Transcript:      req.Transcript,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	indexed := false
	if s.embedder != nil && s.stores.Index != nil && req.Transcript != "" {
		if err := s.indexTranscript(r, userID, id, req.Transcript); err != nil {
			observe.Logger(r.Context()).Warn("transcript indexing failed",
				"consultation", id, "error", err)
		} else {
			indexed = true
		}
	}

	writeData(w, http.StatusOK, map[string]any{"id": id, "indexed": indexed})
}

func (s *Server) indexTranscript(r *http.Request, userID, id, transcript string) error {
	start := time.Now()
	vec, err := s.embedder.Embed(r.Context(), transcript)
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), s.embedder.ModelID(), "embeddings")
		return err
	}
	s.metrics.EmbeddingDuration.Record(r.Context(), time.Since(start).Seconds())

	return s.stores.Index.Index(r.Context(), store.IndexEntry{
		ConsultationID: id,
		UserID:         userID,
		Content:        transcript,
		Embedding:      vec,
	})
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

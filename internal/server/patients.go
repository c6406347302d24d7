package server

import (
	"net/http"
	"time"
)

type patientJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) createPatient(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := s.stores.Patients.Create(r.Context(), userID, req.Name)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) listPatients(w http.ResponseWriter, r *http.Request, userID string) {
	patients, err := s.stores.Patients.ListByUser(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	out := make([]patientJSON, 0, len(patients))
	for _, p := range patients {
		out = append(out, patientJSON{
			ID:        p.ID,
			Name:      p.Name,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		})
	}
	writeData(w, http.StatusOK, out)
}

// matchPatient resolves a spoken or typed name against the user's patient
// roster using phonetic and fuzzy matching.
func (s *Server) matchPatient(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	patients, err := s.stores.Patients.ListByUser(r.Context(), userID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	match, score, ok := s.matcher.Match(req.Name, patients)
	if !ok {
		writeData(w, http.StatusOK, map[string]any{"matched": false})
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"matched": true,
		"patient": patientJSON{
			ID:        match.ID,
			Name:      match.Name,
			CreatedAt: match.CreatedAt.Format(time.RFC3339),
		},
		"score": score,
	})
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/s4nfs/mediscribe/internal/document"
	"github.com/s4nfs/mediscribe/internal/observe"
	"github.com/s4nfs/mediscribe/internal/resilience"
	"github.com/s4nfs/mediscribe/pkg/store"
)

// documentJSON is the wire shape of a generated document.
type documentJSON struct {
	ID             string `json:"id"`
	ConsultationID string `json:"consultation_id"`
	Kind           string `json:"kind"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

// generateRequest is the document generation request body. Patient and clinic
// fields are optional context for the template.
type generateRequest struct {
	ConsultationID string `json:"consultation_id"`
	Kind           string `json:"kind"`

	PatientName    string `json:"patient_name,omitempty"`
	PatientAge     int    `json:"patient_age,omitempty"`
	PatientGender  string `json:"patient_gender,omitempty"`
	MedicalHistory string `json:"medical_history,omitempty"`
	Allergies      string `json:"allergies,omitempty"`
	Medications    string `json:"medications,omitempty"`
	Diagnosis      string `json:"diagnosis,omitempty"`
	DoctorName     string `json:"doctor_name,omitempty"`
	ClinicName     string `json:"clinic_name,omitempty"`
}

// generateDocument produces a clinical document from a consultation's
// transcript and stores it. SOAP notes return structured JSON content; every
// other kind returns the generated text verbatim.
func (s *Server) generateDocument(w http.ResponseWriter, r *http.Request, userID string) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "document generation is not configured")
		return
	}

	var req generateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind := document.Kind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown document kind "+req.Kind)
		return
	}

	cons, err := s.stores.Consultations.Get(r.Context(), userID, req.ConsultationID)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if cons.Transcript == "" {
		writeError(w, http.StatusUnprocessableEntity, "consultation has no transcript")
		return
	}

	dctx := document.Context{
		PatientName:      req.PatientName,
		PatientAge:       req.PatientAge,
		PatientGender:    req.PatientGender,
		MedicalHistory:   req.MedicalHistory,
		Allergies:        req.Allergies,
		Medications:      req.Medications,
		Diagnosis:        req.Diagnosis,
		DoctorName:       req.DoctorName,
		ClinicName:       req.ClinicName,
		ConsultationType: cons.Type,
	}
	if dctx.PatientName == "" {
		dctx.PatientName = cons.PatientName
	}

	start := time.Now()
	content, err := s.generateContent(r, kind, cons.Transcript, dctx)
	if err != nil {
		s.metrics.RecordDocument(r.Context(), string(kind), "error")
		if errors.Is(err, resilience.ErrOpen) {
			writeError(w, http.StatusServiceUnavailable, "document generation temporarily unavailable")
			return
		}
		observe.Logger(r.Context()).Error("document generation failed",
			"kind", kind, "consultation", cons.ID, "error", err)
		writeError(w, http.StatusBadGateway, "document generation failed")
		return
	}
	s.metrics.RecordDocument(r.Context(), string(kind), "ok")
	s.metrics.GenerationDuration.Record(r.Context(), time.Since(start).Seconds())

	doc := store.GeneratedDocument{
		ConsultationID: cons.ID,
		UserID:         userID,
		Kind:           string(kind),
		Content:        content,
	}
	id, err := s.stores.Documents.Create(r.Context(), doc)
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, documentJSON{
		ID:             id,
		ConsultationID: cons.ID,
		Kind:           string(kind),
		Content:        content,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) generateContent(r *http.Request, kind document.Kind, transcript string, dctx document.Context) (string, error) {
	if kind == document.KindSOAPNotes {
		note, err := s.generator.GenerateSOAP(r.Context(), transcript, dctx)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(note)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return s.generator.Generate(r.Context(), document.Request{
		Kind:       kind,
		Transcript: transcript,
		Context:    dctx,
	})
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	docs, err := s.stores.Documents.ListByConsultation(r.Context(), userID, id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	out := make([]documentJSON, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentJSON{
			ID:             d.ID,
			ConsultationID: d.ConsultationID,
			Kind:           d.Kind,
			Content:        d.Content,
			CreatedAt:      d.CreatedAt.Format(time.RFC3339),
		})
	}
	writeData(w, http.StatusOK, out)
}

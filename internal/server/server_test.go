package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/s4nfs/mediscribe/internal/document"
	embmock "github.com/s4nfs/mediscribe/pkg/provider/embeddings/mock"
	llmmock "github.com/s4nfs/mediscribe/pkg/provider/llm/mock"
	"github.com/s4nfs/mediscribe/pkg/store"
	storemock "github.com/s4nfs/mediscribe/pkg/store/mock"
)

type testEnv struct {
	server *Server
	mux    *http.ServeMux
	store  *storemock.Store
	llm    *llmmock.Provider
	emb    *embmock.Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := storemock.New()
	lp := &llmmock.Provider{Response: "Generated clinical letter."}
	ep := &embmock.Provider{}

	srv := New(Stores{
		Consultations: st,
		Patients:      st.Patients(),
		Documents:     st.Documents(),
		Index:         st,
	},
		WithGenerator(document.NewGenerator(lp)),
		WithEmbedder(ep),
	)
	mux := http.NewServeMux()
	srv.Register(mux)

	return &testEnv{server: srv, mux: mux, store: st, llm: lp, emb: ep}
}

// do issues a request with the test user header and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(userHeader, "user-1")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the envelope data field into v, failing on an error
// envelope.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Success {
		t.Fatalf("error envelope: %s", env.Error)
	}
	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
}

func (e *testEnv) createConsultationWithTranscript(t *testing.T, transcript string) string {
	t.Helper()
	ctx := context.Background()
	pid, err := e.store.CreatePatient(ctx, "user-1", "Jane Citizen")
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	id, err := e.store.Create(ctx, "user-1", pid, "general-consult")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if transcript != "" {
		if err := e.store.Save(ctx, id, store.Snapshot{Transcript: transcript, DurationSeconds: 120}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	return id
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/consultations", nil)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Success {
		t.Error("success = true for unauthenticated request")
	}
}

func TestConsultationLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	pid, err := e.store.CreatePatient(ctx, "user-1", "Jane Citizen")
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	// Create.
	rec := e.do(t, "POST", "/api/consultations", map[string]string{"patient_id": pid})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeData(t, rec, &created)
	if created.ID == "" {
		t.Fatal("no consultation id returned")
	}

	// Autosave.
	rec = e.do(t, "POST", "/api/consultations/"+created.ID+"/autosave", map[string]any{
		"transcript":       "[Speaker 0] mild fever for three days",
		"duration_seconds": 42,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("autosave status = %d, body %s", rec.Code, rec.Body)
	}

	// Read back.
	rec = e.do(t, "GET", "/api/consultations/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got consultationJSON
	decodeData(t, rec, &got)
	if !strings.Contains(got.Transcript, "mild fever") {
		t.Errorf("transcript = %q", got.Transcript)
	}
	if got.DurationSeconds != 42 {
		t.Errorf("duration = %d, want 42", got.DurationSeconds)
	}
	if got.Status != "in-progress" {
		t.Errorf("status = %q, want in-progress", got.Status)
	}

	// Finalize indexes the transcript.
	rec = e.do(t, "POST", "/api/consultations/"+created.ID+"/finalize", map[string]any{
		"transcript":       "[Speaker 0] mild fever for three days",
		"duration_seconds": 180,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize status = %d, body %s", rec.Code, rec.Body)
	}
	var fin struct {
		Indexed bool `json:"indexed"`
	}
	decodeData(t, rec, &fin)
	if !fin.Indexed {
		t.Error("finalize did not index the transcript")
	}

	rec = e.do(t, "GET", "/api/consultations/"+created.ID, nil)
	decodeData(t, rec, &got)
	if got.Status != "completed" {
		t.Errorf("status after finalize = %q, want completed", got.Status)
	}

	// List.
	rec = e.do(t, "GET", "/api/consultations", nil)
	var list []consultationJSON
	decodeData(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("list length = %d, want 1", len(list))
	}

	// Delete.
	rec = e.do(t, "DELETE", "/api/consultations/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = e.do(t, "GET", "/api/consultations/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestGetConsultation_NotFound(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, "GET", "/api/consultations/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateConsultation_MissingPatient(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, "POST", "/api/consultations", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateDocument(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConsultationWithTranscript(t, "[Speaker 0] persistent lower back pain")

	rec := e.do(t, "POST", "/api/documents/generate", map[string]any{
		"consultation_id": id,
		"kind":            "referral-letter",
		"patient_name":    "Jane Citizen",
		"doctor_name":     "Dr. Wong",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var doc documentJSON
	decodeData(t, rec, &doc)
	if doc.Content != "Generated clinical letter." {
		t.Errorf("content = %q", doc.Content)
	}
	if doc.Kind != "referral-letter" {
		t.Errorf("kind = %q", doc.Kind)
	}

	// The prompt must carry the transcript and the context fields.
	calls := e.llm.CompleteCalls
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(calls))
	}
	prompt := calls[0].Req.Prompt
	if !strings.Contains(prompt, "lower back pain") {
		t.Error("prompt missing transcript")
	}
	if !strings.Contains(prompt, "Jane Citizen") {
		t.Error("prompt missing patient name")
	}

	// The document is persisted and listable.
	rec = e.do(t, "GET", "/api/consultations/"+id+"/documents", nil)
	var docs []documentJSON
	decodeData(t, rec, &docs)
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
}

func TestGenerateDocument_SOAPReturnsJSON(t *testing.T) {
	e := newTestEnv(t)
	e.llm.Response = `{"subjective":"Back pain for two weeks","objective":"Reduced lumbar flexion","assessment":"Mechanical low back pain","plan":"Physiotherapy referral"}`
	id := e.createConsultationWithTranscript(t, "[Speaker 0] my back has been sore")

	rec := e.do(t, "POST", "/api/documents/generate", map[string]any{
		"consultation_id": id,
		"kind":            "soap-notes",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var doc documentJSON
	decodeData(t, rec, &doc)

	var note document.SOAPNote
	if err := json.Unmarshal([]byte(doc.Content), &note); err != nil {
		t.Fatalf("content is not SOAP JSON: %v", err)
	}
	if note.Subjective != "Back pain for two weeks" {
		t.Errorf("subjective = %q", note.Subjective)
	}
}

func TestGenerateDocument_UnknownKind(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConsultationWithTranscript(t, "some transcript")

	rec := e.do(t, "POST", "/api/documents/generate", map[string]any{
		"consultation_id": id,
		"kind":            "shopping-list",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateDocument_EmptyTranscript(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConsultationWithTranscript(t, "")

	rec := e.do(t, "POST", "/api/documents/generate", map[string]any{
		"consultation_id": id,
		"kind":            "referral-letter",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestPatientsAndMatching(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, "POST", "/api/patients", map[string]string{"name": "Catherine Smith"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create patient status = %d", rec.Code)
	}

	rec = e.do(t, "GET", "/api/patients", nil)
	var patients []patientJSON
	decodeData(t, rec, &patients)
	if len(patients) != 1 || patients[0].Name != "Catherine Smith" {
		t.Fatalf("patients = %+v", patients)
	}

	// A phonetic variant of the stored name should resolve.
	rec = e.do(t, "POST", "/api/patients/match", map[string]string{"name": "Katherine Smith"})
	var match struct {
		Matched bool        `json:"matched"`
		Patient patientJSON `json:"patient"`
	}
	decodeData(t, rec, &match)
	if !match.Matched {
		t.Fatal("expected a phonetic match")
	}
	if match.Patient.Name != "Catherine Smith" {
		t.Errorf("matched %q", match.Patient.Name)
	}

	// An unrelated name should not.
	rec = e.do(t, "POST", "/api/patients/match", map[string]string{"name": "Bob Zyzzyva"})
	decodeData(t, rec, &match)
	if match.Matched {
		t.Error("unexpected match for unrelated name")
	}
}

func TestHistorySearch(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConsultationWithTranscript(t, "[Speaker 0] recurring migraines with aura")

	rec := e.do(t, "POST", "/api/consultations/"+id+"/finalize", map[string]any{
		"transcript":       "[Speaker 0] recurring migraines with aura",
		"duration_seconds": 300,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize status = %d", rec.Code)
	}

	rec = e.do(t, "POST", "/api/history/search", map[string]any{
		"query": "recurring migraines with aura",
		"top_k": 3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body)
	}
	var hits []searchHitJSON
	decodeData(t, rec, &hits)
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].ConsultationID != id {
		t.Errorf("hit consultation = %q, want %q", hits[0].ConsultationID, id)
	}
}

func TestHistorySearch_NotConfigured(t *testing.T) {
	st := storemock.New()
	srv := New(Stores{Consultations: st, Patients: st.Patients(), Documents: st.Documents()})
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest("POST", "/api/history/search",
		strings.NewReader(`{"query":"anything"}`))
	req.Header.Set(userHeader, "user-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		e.mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

// Package server exposes the mediscribe HTTP API.
//
// All /api routes require the X-User-ID header; every store read and write is
// scoped to that user. Responses share one JSON envelope:
//
//	{"success": true, "data": ...}
//	{"success": false, "error": "..."}
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/s4nfs/mediscribe/internal/document"
	"github.com/s4nfs/mediscribe/internal/health"
	"github.com/s4nfs/mediscribe/internal/observe"
	"github.com/s4nfs/mediscribe/internal/patientmatch"
	"github.com/s4nfs/mediscribe/pkg/provider/embeddings"
	"github.com/s4nfs/mediscribe/pkg/store"
)

// userHeader carries the authenticated user ID. Authentication itself is
// terminated upstream; the server trusts this header.
const userHeader = "X-User-ID"

// Stores bundles the persistence interfaces the API serves.
type Stores struct {
	Consultations store.Consultations
	Patients      store.Patients
	Documents     store.Documents
	Index         store.SemanticIndex
}

// Server is the mediscribe HTTP API.
type Server struct {
	stores    Stores
	generator *document.Generator
	embedder  embeddings.Provider
	matcher   *patientmatch.Matcher
	health    *health.Handler
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGenerator enables the document generation endpoints.
func WithGenerator(g *document.Generator) Option {
	return func(s *Server) { s.generator = g }
}

// WithEmbedder enables semantic indexing and history search.
func WithEmbedder(e embeddings.Provider) Option {
	return func(s *Server) { s.embedder = e }
}

// WithMatcher enables phonetic patient matching.
func WithMatcher(m *patientmatch.Matcher) Option {
	return func(s *Server) { s.matcher = m }
}

// WithHealth sets the health handler registered on the mux.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server over the given stores. Providers are optional; their
// endpoints return 503 when not configured.
func New(stores Stores, opts ...Option) *Server {
	s := &Server{
		stores:  stores,
		health:  health.New(),
		logger:  slog.Default(),
		matcher: patientmatch.New(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the fully routed handler, wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/consultations", s.auth(s.createConsultation))
	mux.HandleFunc("GET /api/consultations", s.auth(s.listConsultations))
	mux.HandleFunc("GET /api/consultations/{id}", s.auth(s.getConsultation))
	mux.HandleFunc("DELETE /api/consultations/{id}", s.auth(s.deleteConsultation))
	mux.HandleFunc("POST /api/consultations/{id}/autosave", s.auth(s.autosaveConsultation))
	mux.HandleFunc("POST /api/consultations/{id}/finalize", s.auth(s.finalizeConsultation))
	mux.HandleFunc("GET /api/consultations/{id}/documents", s.auth(s.listDocuments))

	mux.HandleFunc("POST /api/documents/generate", s.auth(s.generateDocument))

	mux.HandleFunc("POST /api/patients", s.auth(s.createPatient))
	mux.HandleFunc("GET /api/patients", s.auth(s.listPatients))
	mux.HandleFunc("POST /api/patients/match", s.auth(s.matchPatient))

	mux.HandleFunc("POST /api/history/search", s.auth(s.searchHistory))
}

// handlerFunc is an API handler with the authenticated user resolved.
type handlerFunc func(w http.ResponseWriter, r *http.Request, userID string)

// auth rejects requests without the user header.
func (s *Server) auth(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userHeader+" header")
			return
		}
		next(w, r, userID)
	}
}

// envelope is the uniform JSON response body.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}

// decode parses the request body into v, limiting body size.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// storeError maps store errors to API responses and logs unexpected ones.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	observe.Logger(r.Context()).Error("store operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

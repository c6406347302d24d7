package server

import (
	"net/http"
	"time"
)

type searchHitJSON struct {
	ConsultationID string  `json:"consultation_id"`
	Content        string  `json:"content"`
	Distance       float64 `json:"distance"`
	CreatedAt      string  `json:"created_at"`
}

// searchHistory embeds the query text and returns the nearest indexed
// transcripts from the user's history.
func (s *Server) searchHistory(w http.ResponseWriter, r *http.Request, userID string) {
	if s.embedder == nil || s.stores.Index == nil {
		writeError(w, http.StatusServiceUnavailable, "history search is not configured")
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	start := time.Now()
	vec, err := s.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), s.embedder.ModelID(), "embeddings")
		writeError(w, http.StatusBadGateway, "query embedding failed")
		return
	}
	s.metrics.EmbeddingDuration.Record(r.Context(), time.Since(start).Seconds())

	hits, err := s.stores.Index.Search(r.Context(), userID, vec, req.TopK)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	out := make([]searchHitJSON, 0, len(hits))
	for _, h := range hits {
		out = append(out, searchHitJSON{
			ConsultationID: h.ConsultationID,
			Content:        h.Content,
			Distance:       h.Distance,
			CreatedAt:      h.CreatedAt.Format(time.RFC3339),
		})
	}
	writeData(w, http.StatusOK, out)
}

package httpapi

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotStages())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}
	if s.history == nil {
		respondJSON(w, http.StatusOK, map[string]any{"records": []any{}})
		return
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Errorw("list synthesis history failed", "error", err)
		respondError(w, http.StatusInternalServerError, "history_unavailable", "could not load history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

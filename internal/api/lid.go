package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/neobin-core/internal/lid"
)

// historyResponse is the response body for GET /lid/history.
type historyResponse struct {
	Entries any `json:"entries"`
	Count   int `json:"count"`
}

// handleGetLid returns a consistent snapshot of the lid state.
func (s *Server) handleGetLid(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lid.Snapshot())
}

// handleQueryLid answers a single selector using the same encoding as the
// BLE inform characteristic, e.g. {"Angle":90}.
func (s *Server) handleQueryLid(w http.ResponseWriter, r *http.Request) {
	selector := chi.URLParam(r, "selector")

	evt, err := s.lid.Query(selector)
	if err != nil {
		if errors.Is(err, lid.ErrInvalidArgument) {
			writeNotFound(w, "unknown selector: "+selector)
			return
		}
		writeInternalError(w, "failed to query lid state")
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// handleGetHistory lists recorded transitions, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "transition history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.GetHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read transition history", "error", err)
		writeInternalError(w, "failed to read transition history")
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{Entries: entries, Count: len(entries)})
}

// handleGetSettings returns the cached lid thresholds.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lid.Snapshot().Settings)
}

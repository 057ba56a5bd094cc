package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultHistoryWindow is how far back the history endpoint looks when
// the request does not say.
const defaultHistoryWindow = 24 * time.Hour

// handleRoomHistory returns recorded value changes for one room,
// newest first.
//
// Query parameters:
//   - from: RFC 3339 range start (default: 24h ago)
//   - to: RFC 3339 range end (default: now)
//   - limit: max results
func (s *Server) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil || !s.history.IsConnected() {
		writeUnavailable(w, "history storage not configured")
		return
	}

	name := chi.URLParam(r, "room")
	if _, err := s.engine.RoomStatus(name); err != nil {
		writeNotFound(w, "room not found")
		return
	}

	q := r.URL.Query()
	end := time.Now()
	start := end.Add(-defaultHistoryWindow)

	if v := q.Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "from must be an RFC 3339 timestamp")
			return
		}
		start = parsed
	}
	if v := q.Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "to must be an RFC 3339 timestamp")
			return
		}
		end = parsed
	}
	if !end.After(start) {
		writeBadRequest(w, "to must be after from")
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	points, err := s.history.QueryRoomHistory(r.Context(), name, start, end, limit)
	if err != nil {
		s.logger.Error("room history query failed", "room", name, "error", err)
		writeInternalError(w, "failed to query room history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room":   name,
		"from":   start.UTC().Format(time.RFC3339),
		"to":     end.UTC().Format(time.RFC3339),
		"points": points,
		"count":  len(points),
	})
}

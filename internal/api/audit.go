package api

import (
	"net/http"
	"strconv"

	"github.com/hearth-home/hearth-core/internal/audit"
)

// handleListAuditLogs serves GET /api/v1/audit (admin only).
//
// The query parameters action, room and source narrow the result,
// limit and offset page through it. Out-of-range page sizes are
// clamped by the repository, malformed ones fall back to the default.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	result, err := s.auditRepo.List(r.Context(), audit.Filter{
		Action: q.Get("action"),
		Room:   q.Get("room"),
		Source: q.Get("source"),
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	})
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional numeric query parameter, zero when absent
// or malformed.
func queryInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

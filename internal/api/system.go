package api

import (
	"net/http"
	"runtime"
	"time"
)

// handleSystemInfo returns a snapshot of the running service.
func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	info := map[string]any{
		"version":        s.version,
		"go_version":     runtime.Version(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"rooms":          len(s.engine.Rooms()),
		"entities":       s.entities.Len(),
		"ws_clients":     0,
		"history":        s.history != nil && s.history.IsConnected(),
	}
	if s.hub != nil {
		info["ws_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, info)
}

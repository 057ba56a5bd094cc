package api

import "net/http"

// handleListSnippets returns the names of the schedule snippets
// available to IncludeSchedule and override expressions.
func (s *Server) handleListSnippets(w http.ResponseWriter, _ *http.Request) {
	var names []string
	if s.snippets != nil {
		names = s.snippets.Names()
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snippets": names, "count": len(names)})
}

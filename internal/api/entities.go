package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListEntities returns every entity state the engine has seen.
func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	entities := s.entities.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities, "count": len(entities)})
}

// handleGetEntity returns one entity's last reported state.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, ok := s.entities.Get(id)
	if !ok {
		writeNotFound(w, "entity not found")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-home/hearth-core/internal/room"
)

// setValueRequest is the request body for PUT /rooms/{room}/value.
// Exactly one of value and expression must be present.
type setValueRequest struct {
	Value      *json.RawMessage `json:"value,omitempty"`
	Expression string           `json:"expression,omitempty"`

	// RescheduleDelay overrides the room's configured delay for this
	// request only, in minutes.
	RescheduleDelay *float64 `json:"reschedule_delay,omitempty"`

	ForceResend bool `json:"force_resend,omitempty"`
}

// rescheduleRequest is the optional request body for the re-schedule
// endpoints.
type rescheduleRequest struct {
	CancelRunningTimer bool `json:"cancel_running_timer,omitempty"`
}

// handleListRooms returns a snapshot of every room.
func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.engine.Rooms()
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

// handleGetRoom returns a single room's snapshot.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")

	status, err := s.engine.RoomStatus(name)
	if err != nil {
		writeNotFound(w, "room not found")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleEvaluateRoom dry-runs a room's schedule.
//
// Query parameters:
//   - at: RFC 3339 instant to evaluate for (default: now)
func (s *Server) handleEvaluateRoom(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")

	at := time.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "at must be an RFC 3339 timestamp")
			return
		}
		at = parsed
	}

	outcome, err := s.engine.EvaluateRoomAt(name, at)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			writeNotFound(w, "room not found")
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	resp := map[string]any{
		"room":      name,
		"at":        at.UTC().Format(time.RFC3339),
		"has_value": outcome.HasValue,
	}
	if outcome.HasValue {
		resp["value"] = outcome.Value
	}
	if outcome.Rule != nil {
		resp["rule"] = outcome.Rule.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSetRoomValue applies a manual override to a room. API callers
// are operator-authenticated, so expressions are allowed.
func (s *Server) handleSetRoomValue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")

	var req setValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	override := room.Override{
		Expression:  req.Expression,
		Trusted:     true,
		ForceResend: req.ForceResend,
	}
	if req.Value != nil {
		var v any
		if err := json.Unmarshal(*req.Value, &v); err != nil {
			writeBadRequest(w, "invalid value")
			return
		}
		override.Value = v
		override.HasValue = true
	}
	if req.RescheduleDelay != nil {
		delay := time.Duration(*req.RescheduleDelay * float64(time.Minute))
		override.RescheduleDelay = &delay
	}

	if err := s.engine.SetValueManually(r.Context(), name, override); err != nil {
		s.writeEngineError(w, err)
		return
	}

	status, err := s.engine.RoomStatus(name)
	if err != nil {
		writeInternalError(w, "failed to read room status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleRescheduleRoom asks one room to fall back to its schedule.
func (s *Server) handleRescheduleRoom(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "room")

	req, ok := decodeRescheduleBody(w, r)
	if !ok {
		return
	}

	if err := s.engine.Reschedule(r.Context(), name, req.CancelRunningTimer); err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "rescheduling", "room": name})
}

// handleRescheduleAll asks every room to fall back to its schedule.
func (s *Server) handleRescheduleAll(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRescheduleBody(w, r)
	if !ok {
		return
	}

	s.engine.RescheduleAll(r.Context(), req.CancelRunningTimer)

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "rescheduling"})
}

// decodeRescheduleBody parses the optional re-schedule request body.
// An empty body is valid and means default options.
func decodeRescheduleBody(w http.ResponseWriter, r *http.Request) (rescheduleRequest, bool) {
	var req rescheduleRequest
	if r.Body == nil {
		return req, true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return req, false
	}
	return req, true
}

// writeEngineError maps engine errors onto HTTP responses. Engine
// failures that are not the caller's fault are logged and swallowed
// inside the engine, so everything surfacing here describes a problem
// with the request itself.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		writeNotFound(w, "room not found")
	case errors.Is(err, room.ErrNoValue):
		writeConflict(w, "override produced no value to set")
	default:
		writeBadRequest(w, err.Error())
	}
}

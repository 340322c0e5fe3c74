package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
)

// persistTimeout bounds store writes triggered by HTTP handlers.
const persistTimeout = 5 * time.Second

// handleGraph returns the full lamp topology with deduplicated edges.
func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lamps.Graph())
}

// handleEvents returns the engine's append-only event log.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"events": s.lamps.Events(),
	})
}

// handleListLamps returns all lamps with their current state.
func (s *Server) handleListLamps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"lamps": s.lamps.Lamps(),
	})
}

// lampResponse decorates a lamp with its pending auto-off deadline.
type lampResponse struct {
	*lamp.Lamp
	OffAt *time.Time `json:"off_at,omitempty"`
}

func (s *Server) lampResponse(l *lamp.Lamp) lampResponse {
	resp := lampResponse{Lamp: l}
	if s.scheduler != nil {
		if deadline, ok := s.scheduler.Deadline(l.ID); ok {
			resp.OffAt = &deadline
		}
	}
	return resp
}

// handleGetLamp returns a single lamp.
func (s *Server) handleGetLamp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, err := s.lamps.GetLamp(id)
	if err != nil {
		if errors.Is(err, lamp.ErrLampNotFound) {
			writeNotFound(w, "lamp not found: "+id)
			return
		}
		writeInternalError(w, "failed to load lamp")
		return
	}
	writeJSON(w, http.StatusOK, s.lampResponse(l))
}

// upsertLampRequest is the body for POST /lamps.
type upsertLampRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Street      string   `json:"street"`
	Connections []string `json:"connections"`
}

// handleUpsertLamp creates or updates a lamp's descriptive fields and
// persists them.
func (s *Server) handleUpsertLamp(w http.ResponseWriter, r *http.Request) {
	var req upsertLampRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}

	meta := lamp.Metadata{Name: req.Name, Street: req.Street, Connections: req.Connections}
	l := s.lamps.UpsertLampMetadata(req.ID, meta)

	ctx, cancel := context.WithTimeout(r.Context(), persistTimeout)
	defer cancel()
	if err := s.store.UpsertLampMetadata(ctx, req.ID, meta); err != nil {
		s.logger.Error("failed to persist lamp metadata", "lamp_id", req.ID, "error", err)
		writeInternalError(w, "failed to persist lamp")
		return
	}

	// Topology changed; observers need the new graph.
	s.broadcastUpdate()
	writeJSON(w, http.StatusOK, l)
}

// setStateRequest is the body for PATCH /lamps/{id}/state. Absent
// fields leave the current value untouched.
type setStateRequest = lamp.PartialState

// handleSetLampState applies a partial state update to one lamp.
func (s *Server) handleSetLampState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.lamps.GetLamp(id); err != nil {
		writeNotFound(w, "lamp not found: "+id)
		return
	}

	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	s.lamps.SetLampState(id, req)
	l, err := s.lamps.GetLamp(id)
	if err != nil {
		writeInternalError(w, "failed to load lamp")
		return
	}
	writeJSON(w, http.StatusOK, s.lampResponse(l))
}

// setColorRequest is the body for POST /lamps/{id}/color.
type setColorRequest struct {
	Color string `json:"color"`
	Mode  string `json:"mode"`
}

// handleSetLampColor changes a lamp's colour without touching on/brightness.
func (s *Server) handleSetLampColor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.lamps.GetLamp(id); err != nil {
		writeNotFound(w, "lamp not found: "+id)
		return
	}

	var req setColorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Color == "" {
		writeBadRequest(w, "color is required")
		return
	}

	partial := lamp.PartialState{Color: &req.Color}
	if req.Mode != "" {
		partial.ColorMode = &req.Mode
	}
	s.lamps.SetLampState(id, partial)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

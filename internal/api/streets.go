package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
)

// activateStreetRequest is the optional body for street activation.
// Absent fields fall back to the configured defaults: on=true, each
// lamp's current brightness, and the configured pulse colour.
type activateStreetRequest struct {
	On         *bool   `json:"on"`
	Brightness *int    `json:"brightness"`
	Color      *string `json:"color"`
}

// spilloverDepth resolves the effective BFS depth for a request. The
// spillover query parameter only disables spillover; the depth itself
// is server configuration.
func (s *Server) spilloverDepth(r *http.Request) int {
	if strings.EqualFold(r.URL.Query().Get("spillover"), "false") {
		return 0
	}
	return s.engineCfg.SpilloverDepth
}

// handleActivateStreet activates every lamp on the street plus
// cross-street spillover, then pushes the result to affected devices.
func (s *Server) handleActivateStreet(w http.ResponseWriter, r *http.Request) {
	streetID := chi.URLParam(r, "id")

	var req activateStreetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	on := true
	if req.On != nil {
		on = *req.On
	}
	depth := s.spilloverDepth(r)
	opts := lamp.ActivateOptions{
		On:             on,
		Brightness:     req.Brightness,
		Color:          req.Color,
		SpilloverDepth: depth,
	}
	if opts.Color == nil && s.engineCfg.PulseColor != "" {
		color := s.engineCfg.PulseColor
		opts.Color = &color
	}

	affected := s.lamps.ActivateStreet(streetID, opts)
	s.sessions.PushActivated(affected)

	writeJSON(w, http.StatusOK, map[string]any{
		"affected_lamp_ids": affected,
		"spillover_depth":   depth,
	})
}

// handlePreviewStreet returns which lamps an activation would touch,
// without mutating anything.
func (s *Server) handlePreviewStreet(w http.ResponseWriter, r *http.Request) {
	streetID := chi.URLParam(r, "id")
	depth := s.spilloverDepth(r)
	affected := s.lamps.PreviewStreetActivation(streetID, depth)

	writeJSON(w, http.StatusOK, map[string]any{
		"affected_lamp_ids": affected,
		"spillover_depth":   depth,
	})
}

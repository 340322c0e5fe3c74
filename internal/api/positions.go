package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/svenyesyes/smart-lantaarn-server/internal/topology"
)

// handleGetPositions returns the stored UI layout positions.
func (s *Server) handleGetPositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": s.cachedPositions(),
	})
}

// handleSetPositions replaces the layout positions, persists them, and
// broadcasts the new layout to every observer.
func (s *Server) handleSetPositions(w http.ResponseWriter, r *http.Request) {
	var positions map[string]topology.Position
	if err := json.NewDecoder(r.Body).Decode(&positions); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if positions == nil {
		positions = make(map[string]topology.Position)
	}

	ctx, cancel := context.WithTimeout(r.Context(), persistTimeout)
	defer cancel()
	if err := s.store.SavePositions(ctx, positions); err != nil {
		s.logger.Error("failed to persist layout positions", "error", err)
		writeInternalError(w, "failed to persist positions")
		return
	}

	s.posMu.Lock()
	s.positions = positions
	s.posMu.Unlock()

	s.hub.BroadcastJSON(positionsMessage{
		Type:      msgTypePositions,
		Positions: s.cachedPositions(),
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

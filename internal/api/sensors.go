package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
)

// handleListSensors returns all registered sensors.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": s.lamps.Sensors(),
	})
}

// upsertSensorRequest is the body for POST /sensors.
type upsertSensorRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Street       string `json:"street"`
	LinkedLampID string `json:"linked_lamp_id"`
}

// handleUpsertSensor creates or updates a sensor and persists it.
func (s *Server) handleUpsertSensor(w http.ResponseWriter, r *http.Request) {
	var req upsertSensorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeBadRequest(w, "id is required")
		return
	}

	meta := lamp.SensorMetadata{Name: req.Name, Street: req.Street, LinkedLampID: req.LinkedLampID}
	sn := s.lamps.UpsertSensor(req.ID, meta)

	ctx, cancel := context.WithTimeout(r.Context(), persistTimeout)
	defer cancel()
	if err := s.store.UpsertSensor(ctx, req.ID, meta); err != nil {
		s.logger.Error("failed to persist sensor", "sensor_id", req.ID, "error", err)
		writeInternalError(w, "failed to persist sensor")
		return
	}

	writeJSON(w, http.StatusOK, sn)
}

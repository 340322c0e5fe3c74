package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/settings", s.handleSettings)

		r.Get("/graph", s.handleGraph)
		r.Get("/events", s.handleEvents)

		r.Route("/lamps", func(r chi.Router) {
			r.Get("/", s.handleListLamps)
			r.Post("/", s.handleUpsertLamp)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetLamp)
				r.Patch("/state", s.handleSetLampState)
				r.Post("/color", s.handleSetLampColor)
			})
		})

		r.Route("/streets/{id}", func(r chi.Router) {
			r.Post("/activate", s.handleActivateStreet)
			r.Get("/preview", s.handlePreviewStreet)
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", s.handleListSensors)
			r.Post("/", s.handleUpsertSensor)
		})

		r.Route("/positions", func(r chi.Router) {
			r.Get("/", s.handleGetPositions)
			r.Post("/", s.handleSetPositions)
		})

		// WebSocket endpoints: UI observers and physical devices.
		r.Get("/ws", s.handleObserverWebSocket)
		r.Get("/ws/device", s.handleDeviceWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleSettings returns the activation defaults UI clients need.
func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"spillover_depth":  s.engineCfg.SpilloverDepth,
		"pulse_color":      s.engineCfg.PulseColor,
		"auto_off_seconds": s.autoCfg.Duration,
	})
}

package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.HandleListDevices)
			r.Post("/", h.HandleCreateDevice)
			r.Delete("/{deviceID}", h.HandleDeleteDevice)
			r.Post("/{deviceID}/events", h.HandleDeviceEvent)
			r.Get("/{deviceID}/readings", h.HandleDeviceReadings)
			r.Put("/{deviceID}/simulation", h.HandleConfigureSimulation)
			r.Post("/{deviceID}/simulation/start", h.HandleStartSimulation)
			r.Post("/{deviceID}/simulation/stop", h.HandleStopSimulation)
		})
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.HandleListRules)
			r.Post("/", h.HandleCreateRule)
			r.Delete("/{ruleID}", h.HandleDeleteRule)
		})
	})

	r.Get("/ws", h.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

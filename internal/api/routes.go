package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the edge router: the control-plane API under /api/v1,
// Prometheus metrics, and the catch-all portal gateway.
func NewRouter(h *Handler, gateway http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes: health and the notification stream stay reachable
		// from kiosk UIs that carry no credentials.
		r.Get("/health", h.Health)
		r.Get("/events", h.Events)

		// Protected routes (auth required when an API key is configured)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Get("/status", h.Status)
			r.Get("/queue", h.QueueList)
			r.Post("/sync", h.SyncNow)
			r.Post("/control", h.Control)
			r.Get("/cache", h.CacheStatus)
			r.Post("/geocode", h.Geocode)
			r.Post("/reverse-geocode", h.ReverseGeocode)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	// Everything else is portal traffic.
	r.NotFound(gateway.ServeHTTP)

	return r
}

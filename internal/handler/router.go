package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-relay/internal/handler/ops"
	"github.com/zhouzirui/z-relay/internal/metrics"
)

// NewRouter wires the operational HTTP surface: liveness, status and
// Prometheus metrics. Chat traffic never passes through here, it rides
// the Socket Mode connection.
func NewRouter(opsHandler *ops.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", opsHandler.HandleHealthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		opsHandler.RegisterRoutes(api)
	})

	return r
}

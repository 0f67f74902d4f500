package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/delivery/http/handler"
	"github.com/user/brandwatch/internal/delivery/http/middleware"
)

func New(h *handler.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealthCheck)
		r.Get("/status", h.HandleGetStatus)
		r.Get("/stats", h.HandleGetStats)

		r.Post("/run", h.HandleStartRun)
		r.Post("/stop", h.HandleStop)
		r.Post("/pause", h.HandlePause)
		r.Post("/resume", h.HandleResume)
		r.Put("/mode", h.HandleSetMode)

		r.Get("/proxies", h.HandleListProxies)
		r.Post("/proxies", h.HandleAddProxies)
	})

	return r
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/gomarketplace/internal/store"
	"github.com/utafrali/gomarketplace/pkg/health"
	"github.com/utafrali/gomarketplace/pkg/middleware"
)

// RouterDeps are the collaborators of NewRouter.
type RouterDeps struct {
	Store       *store.CartStore
	Health      *health.Handler
	HTTPMetrics *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all cart routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler)
	}
	r.Use(middleware.Tracing("cart"))
	r.Use(middleware.RequestLogger(deps.Logger))

	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	h := NewCartHandler(deps.Logger)

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(WithStore(deps.Store))

		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Get("/status", h.Status)
		r.Post("/sync", h.Sync)

		r.Post("/items", h.AddItem)
		r.Post("/items/{id}/increment", h.Increment)
		r.Post("/items/{id}/decrement", h.Decrement)
	})

	return r
}

package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/auth"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/session"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/health"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/middleware"
)

const serviceName = "taxonomy"

// RouterConfig holds the router's optional pieces.
type RouterConfig struct {
	CORS middleware.CORSConfig

	// RateLimiter throttles /api routes per client IP. Nil disables it.
	RateLimiter *middleware.RateLimiter

	// ValidateToken checks admin bearer tokens. Nil rejects every admin call.
	ValidateToken middleware.TokenValidator

	// ReadMaxAge is the Cache-Control max-age of taxonomy reads.
	ReadMaxAge time.Duration

	// RequestTimeout bounds one request. Zero means no bound.
	RequestTimeout time.Duration

	PprofEnabled      bool
	PprofAllowedCIDRs []string
}

var errAdminDisabled = errors.New("admin API is disabled")

// NewRouter creates a chi router with all taxonomy service routes registered.
func NewRouter(
	cfg RouterConfig,
	taxonomyHandler *TaxonomyHandler,
	selectionHandler *SelectionHandler,
	filterHandler *FilterHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)
	}

	validate := cfg.ValidateToken
	if validate == nil {
		validate = func(string) (*middleware.Claims, error) { return nil, errAdminDisabled }
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		r.Use(middleware.SessionID(session.HeaderName))
		r.Use(middleware.RequestLogger(logger))

		r.Route("/taxonomy", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.CacheControl(cfg.ReadMaxAge))

				r.Get("/main", taxonomyHandler.MainCategories)
				r.Get("/nodes/{id}", taxonomyHandler.GetNode)
				r.Get("/nodes/{id}/children", taxonomyHandler.Children)
				r.Get("/hierarchy", taxonomyHandler.Hierarchy)
				r.Get("/search", taxonomyHandler.Search)
				r.Get("/slug/{slug}", taxonomyHandler.BySlug)
				r.Get("/type/{type}", taxonomyHandler.ByType)
				r.Get("/level/{level}", taxonomyHandler.ByLevel)
				r.Get("/statistics", taxonomyHandler.Statistics)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(validate))
				r.Use(middleware.RequireRole(auth.RoleAdmin))

				r.Post("/nodes", taxonomyHandler.CreateNode)
				r.Put("/nodes/{id}", taxonomyHandler.UpdateNode)
				r.Delete("/nodes/{id}", taxonomyHandler.DeleteNode)
			})
		})

		r.Route("/selection", func(r chi.Router) {
			r.Get("/", selectionHandler.GetSelection)
			r.Delete("/", selectionHandler.ClearAll)
			r.Post("/toggle", selectionHandler.Toggle)
			r.Put("/{type}", selectionHandler.SetLevel)
			r.Delete("/{type}", selectionHandler.ClearLevel)
		})

		r.Post("/products/filter", filterHandler.FilterProducts)
	})

	return r
}

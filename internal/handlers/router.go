package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig wires the handlers into a router. Metrics may be nil.
type RouterConfig struct {
	Claims  *ClaimsHandler
	Health  http.Handler
	Metrics http.Handler
	Limiter *MemberLimiter
	Logger  *zap.Logger
}

// NewRouter builds the HTTP routes of the submission API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))

	r.Method(http.MethodGet, "/health", cfg.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1/claims", func(r chi.Router) {
		r.Use(RequireMember)

		r.With(RateLimit(cfg.Limiter)).Post("/", cfg.Claims.SubmitClaim)
		r.Get("/", cfg.Claims.ListClaims)
		r.Get("/{claimID}", cfg.Claims.GetClaim)
	})

	return r
}

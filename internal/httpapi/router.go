// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

// Package httpapi exposes the identity service over JSON/HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fxg4n/m5/internal/auth"
	"github.com/fxg4n/m5/internal/ratelimit"
)

// Metrics receives HTTP-level counters. observability.Metrics implements it.
type Metrics interface {
	RateLimitHit(route string)
	ValidationFailure(field, code string)
	ObserveRequest(route, status string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RateLimitHit(string)                          {}
func (nopMetrics) ValidationFailure(string, string)             {}
func (nopMetrics) ObserveRequest(string, string, time.Duration) {}

// Config holds the router dependencies. Service is required.
type Config struct {
	Service *auth.Service
	// Limiter throttles requests per client address. Nil disables limiting.
	Limiter ratelimit.Limiter
	Metrics Metrics
	Logger  *slog.Logger
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

// Handler serves the /auth/v1 routes.
type Handler struct {
	service    *auth.Service
	limiter    ratelimit.Limiter
	metrics    Metrics
	logger     *slog.Logger
	trustProxy bool
	// routes holds the registered patterns. Middleware ahead of routing
	// labels metrics with these only.
	routes map[string]struct{}
}

// NewRouter builds the HTTP handler with its middleware stack.
func NewRouter(cfg Config) http.Handler {
	h := &Handler{
		service:    cfg.Service,
		limiter:    cfg.Limiter,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		trustProxy: cfg.TrustProxy,
	}
	if h.metrics == nil {
		h.metrics = nopMetrics{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.recoverer)
	r.Use(h.accessLog)
	r.Use(h.rateLimit)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)
			r.Post("/logout-all", h.logoutAll)
			r.Get("/me", h.me)
			r.Get("/sessions", h.listSessions)
			r.Get("/audit", h.auditTrail)
			r.Post("/password", h.changePassword)
			r.Delete("/account", h.deleteAccount)
		})
	})

	h.routes = make(map[string]struct{})
	_ = chi.Walk(r, func(_, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		h.routes[route] = struct{}{}
		return nil
	})

	return r
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fxg4n/m5/internal/auth"
)

const namespace = "m5"

// Metrics holds the identity service counters. It implements auth.Recorder.
type Metrics struct {
	LoginAttempts      *prometheus.CounterVec
	Registrations      *prometheus.CounterVec
	SessionsIssued     prometheus.Counter
	TokenValidations   *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	RateLimited        *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome",
		}, []string{"outcome"}),
		SessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_issued_total",
			Help:      "Sessions issued",
		}),
		TokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Session token validations by outcome",
		}, []string{"outcome"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected input fields by field and code",
		}, []string{"field", "code"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter by route",
		}, []string{"route"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.Registrations,
		m.SessionsIssued,
		m.TokenValidations,
		m.ValidationFailures,
		m.RateLimited,
		m.RequestDuration,
	)
	return m
}

// LoginAttempt counts one Authenticate call by outcome.
func (m *Metrics) LoginAttempt(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// Registration counts one Register call by outcome.
func (m *Metrics) Registration(outcome string) {
	m.Registrations.WithLabelValues(outcome).Inc()
}

// SessionIssued counts one newly issued session.
func (m *Metrics) SessionIssued() {
	m.SessionsIssued.Inc()
}

// TokenValidation counts one bearer token check by outcome.
func (m *Metrics) TokenValidation(outcome string) {
	m.TokenValidations.WithLabelValues(outcome).Inc()
}

// ValidationFailure counts one rejected field.
func (m *Metrics) ValidationFailure(field, code string) {
	m.ValidationFailures.WithLabelValues(field, code).Inc()
}

// RateLimitHit counts one rejected request on route.
func (m *Metrics) RateLimitHit(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}

// ObserveRequest records an HTTP request duration.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	m.RequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}

var _ auth.Recorder = (*Metrics)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package httpapi_test

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/fxg4n/m5/internal/apperr"
	"github.com/fxg4n/m5/internal/auth"
	"github.com/fxg4n/m5/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	email    = "carol@example.com"
	password = "Sup3r$ecret"
)

var _ = Describe("Auth API", func() {
	var env *apiEnv

	BeforeEach(func() {
		env = newAPI(nil)
	})

	Describe("POST /auth/v1/register", func() {
		It("creates the user without exposing the hash", func() {
			resp := env.do(http.MethodPost, "/auth/v1/register", "", map[string]string{"email": email, "password": password})
			Expect(resp.status).To(Equal(http.StatusCreated))

			var body map[string]any
			resp.json(&body)
			Expect(body).To(HaveKeyWithValue("email", email))
			Expect(body).To(HaveKey("id"))
			Expect(body).NotTo(HaveKey("password_hash"))
			Expect(body).NotTo(HaveKey("PasswordHash"))
			Expect(resp.header.Get("X-Request-Id")).NotTo(BeEmpty())
		})

		It("reports every invalid field at once", func() {
			resp := env.do(http.MethodPost, "/auth/v1/register", "", map[string]string{"email": "nope", "password": "short"})
			Expect(resp.status).To(Equal(http.StatusBadRequest))

			appErr := resp.envelope()
			Expect(appErr.Kind).To(Equal(apperr.KindValidation))
			Expect(appErr.Violations).To(HaveLen(2))
			Expect(appErr.Violations[0].Field).To(Equal("email"))
			Expect(appErr.Violations[1].Code).To(Equal("password_too_short"))
		})

		It("rejects a duplicate email regardless of case", func() {
			env.registerAndLogin(email, password)

			resp := env.do(http.MethodPost, "/auth/v1/register", "", map[string]string{"email": "CAROL@example.com", "password": password})
			Expect(resp.status).To(Equal(http.StatusConflict))
			Expect(resp.envelope().Kind).To(Equal(apperr.KindConflict))
		})

		It("rejects malformed JSON as invalid input", func() {
			resp := env.do(http.MethodPost, "/auth/v1/register", "", map[string]any{"email": email, "extra": true})
			Expect(resp.status).To(Equal(http.StatusBadRequest))
			Expect(resp.envelope().Kind).To(Equal(apperr.KindInvalidInput))
		})
	})

	Describe("POST /auth/v1/login", func() {
		BeforeEach(func() {
			env.registerAndLogin(email, password)
		})

		It("returns the same error for unknown users and wrong passwords", func() {
			unknown := env.do(http.MethodPost, "/auth/v1/login", "", map[string]string{"email": "dave@example.com", "password": password})
			wrong := env.do(http.MethodPost, "/auth/v1/login", "", map[string]string{"email": email, "password": "Wr0ng!pass"})

			Expect(unknown.status).To(Equal(http.StatusUnauthorized))
			Expect(wrong.body).To(MatchJSON(unknown.body))
		})

		It("issues a session that expires after the configured duration", func() {
			resp := env.do(http.MethodPost, "/auth/v1/login", "", map[string]string{"email": email, "password": password})
			var result auth.AuthResult
			resp.json(&result)

			Expect(result.Token).To(HaveLen(2 * auth.SessionTokenBytes))
			Expect(result.ExpiresAt).To(BeTemporally("==", env.clock.Now().Add(auth.DefaultSessionDuration)))
		})
	})

	Describe("authenticated routes", func() {
		var token string

		BeforeEach(func() {
			token = env.registerAndLogin(email, password)
		})

		It("requires a bearer token", func() {
			resp := env.do(http.MethodGet, "/auth/v1/me", "", nil)
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
			Expect(resp.envelope().Kind).To(Equal(apperr.KindAuthentication))
		})

		It("resolves the current user", func() {
			resp := env.do(http.MethodGet, "/auth/v1/me", token, nil)
			Expect(resp.status).To(Equal(http.StatusOK))

			var user map[string]any
			resp.json(&user)
			Expect(user).To(HaveKeyWithValue("email", email))
			Expect(user).To(HaveKey("last_login"))
		})

		It("lists sessions and marks the current one", func() {
			other := env.registerAndLogin("erin@example.com", password)
			Expect(other).NotTo(BeEmpty())

			resp := env.do(http.MethodGet, "/auth/v1/sessions", token, nil)
			Expect(resp.status).To(Equal(http.StatusOK))

			var body struct {
				Sessions []struct {
					ID            string `json:"id"`
					ClientAddress string `json:"client_address"`
					Current       bool   `json:"current"`
				} `json:"sessions"`
			}
			resp.json(&body)
			Expect(body.Sessions).To(HaveLen(1))
			Expect(body.Sessions[0].Current).To(BeTrue())
			Expect(body.Sessions[0].ClientAddress).To(Equal("198.51.100.20"))
		})

		It("rejects the token once it expires", func() {
			env.clock.Advance(auth.DefaultSessionDuration)

			resp := env.do(http.MethodGet, "/auth/v1/me", token, nil)
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
		})

		It("logs out idempotently", func() {
			Expect(env.do(http.MethodPost, "/auth/v1/logout", token, nil).status).To(Equal(http.StatusNoContent))
			Expect(env.do(http.MethodPost, "/auth/v1/logout", token, nil).status).To(Equal(http.StatusNoContent))
			Expect(env.do(http.MethodPost, "/auth/v1/logout", "", nil).status).To(Equal(http.StatusNoContent))

			Expect(env.do(http.MethodGet, "/auth/v1/me", token, nil).status).To(Equal(http.StatusUnauthorized))
		})

		It("logs out every session", func() {
			second := env.do(http.MethodPost, "/auth/v1/login", "", map[string]string{"email": email, "password": password})
			var result auth.AuthResult
			second.json(&result)

			resp := env.do(http.MethodPost, "/auth/v1/logout-all", token, nil)
			Expect(resp.status).To(Equal(http.StatusOK))
			var body map[string]int
			resp.json(&body)
			Expect(body).To(HaveKeyWithValue("invalidated", 2))

			Expect(env.do(http.MethodGet, "/auth/v1/me", result.Token, nil).status).To(Equal(http.StatusUnauthorized))
		})

		It("changes the password and ends all sessions", func() {
			resp := env.do(http.MethodPost, "/auth/v1/password", token, map[string]string{
				"current_password": password,
				"new_password":     "N3w!password",
			})
			Expect(resp.status).To(Equal(http.StatusNoContent))
			Expect(env.do(http.MethodGet, "/auth/v1/me", token, nil).status).To(Equal(http.StatusUnauthorized))

			login := env.do(http.MethodPost, "/auth/v1/login", "", map[string]string{"email": email, "password": "N3w!password"})
			Expect(login.status).To(Equal(http.StatusOK))
		})

		It("refuses a password change with the wrong current password", func() {
			resp := env.do(http.MethodPost, "/auth/v1/password", token, map[string]string{
				"current_password": "Wr0ng!pass",
				"new_password":     "N3w!password",
			})
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
			Expect(env.do(http.MethodGet, "/auth/v1/me", token, nil).status).To(Equal(http.StatusOK))
		})

		It("returns the audit trail newest first", func() {
			resp := env.do(http.MethodGet, "/auth/v1/audit?limit=10", token, nil)
			Expect(resp.status).To(Equal(http.StatusOK))

			var body struct {
				Entries []auth.AuditEntry `json:"entries"`
			}
			resp.json(&body)
			Expect(body.Entries).NotTo(BeEmpty())
			Expect(body.Entries[0].Action).To(Equal(auth.AuditLoginSucceeded))
		})

		It("rejects an out of range audit limit", func() {
			resp := env.do(http.MethodGet, "/auth/v1/audit?limit=0", token, nil)
			Expect(resp.status).To(Equal(http.StatusBadRequest))
		})

		It("deletes the account after verifying the password", func() {
			resp := env.do(http.MethodDelete, "/auth/v1/account", token, map[string]string{"password": password})
			Expect(resp.status).To(Equal(http.StatusNoContent))

			Expect(env.do(http.MethodGet, "/auth/v1/me", token, nil).status).To(Equal(http.StatusUnauthorized))
			login := env.do(http.MethodPost, "/auth/v1/login", "", map[string]string{"email": email, "password": password})
			Expect(login.status).To(Equal(http.StatusUnauthorized))
		})
	})

	It("answers unknown routes with a not_found envelope", func() {
		resp := env.do(http.MethodGet, "/auth/v1/nowhere", "", nil)
		Expect(resp.status).To(Equal(http.StatusNotFound))
		Expect(resp.envelope().Kind).To(Equal(apperr.KindNotFound))
	})
})

var _ = Describe("Rate limiting", func() {
	It("rejects clients over the window with Retry-After", func() {
		limiter := ratelimit.NewTokenBucket(ratelimit.Config{Limit: 2, Window: time.Minute}, time.Hour)
		DeferCleanup(limiter.Close)
		env := newAPI(limiter)

		for range 2 {
			Expect(env.do(http.MethodPost, "/auth/v1/logout", "", nil).status).To(Equal(http.StatusNoContent))
		}

		resp := env.do(http.MethodPost, "/auth/v1/logout", "", nil)
		Expect(resp.status).To(Equal(http.StatusTooManyRequests))
		Expect(resp.header.Get("Retry-After")).To(Equal("30"))

		appErr := resp.envelope()
		Expect(appErr.Kind).To(Equal(apperr.KindRateLimit))
		Expect(appErr.Error()).To(ContainSubstring("30 seconds"))
	})
})

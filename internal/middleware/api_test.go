// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/ocms-editorial/internal/workflow"
)

const testToken = "Xk9-pL2q_Rm8vT4wYz6aB1cD3eF5gH7j"

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeAPIError(t *testing.T, rr *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body APIError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "body: %s", rr.Body.String())
	return body
}

func TestWriteAPIError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteAPIError(rr, http.StatusConflict, "conflict", "Item changed", map[string]any{"current_status": "approved"})

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	body := decodeAPIError(t, rr)
	assert.Equal(t, "conflict", body.Error.Code)
	assert.Equal(t, "Item changed", body.Error.Message)
	assert.Equal(t, "approved", body.Error.Details["current_status"])
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + testToken, http.StatusOK},
		{"lowercase scheme", "bearer " + testToken, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic " + testToken, http.StatusUnauthorized},
		{"no token", "Bearer", http.StatusUnauthorized},
		{"wrong token", "Bearer " + strings.Repeat("x", len(testToken)), http.StatusUnauthorized},
		{"token prefix", "Bearer " + testToken[:10], http.StatusUnauthorized},
	}

	wrapped := BearerToken(testToken)(okHandler)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/promotions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "unauthorized", decodeAPIError(t, rr).Error.Code)
			}
		})
	}
}

func TestBearerTokenDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	BearerToken("")(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestActorFromHeaders(t *testing.T) {
	var got workflow.Actor
	var found bool
	h := ActorFromHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = GetActor(r)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderActorID, " ed ")
	req.Header.Set(HeaderActorCapabilities, "review, PUBLISH,unknown")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, found)
	assert.Equal(t, "ed", got.ID)
	assert.Equal(t, workflow.Capabilities{Review: true, Publish: true}, got.Capabilities)

	found = false
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, found)
}

func TestActorFromHeadersRejectsLongID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, strings.Repeat("a", MaxActorIDLength+1))
	rr := httptest.NewRecorder()
	ActorFromHeaders(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequireActor(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireActor(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithActor(req.Context(), workflow.Actor{ID: "alice"}))
	rr = httptest.NewRecorder()
	RequireActor(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireCapability(t *testing.T) {
	wrapped := RequireCapability(workflow.CapPublish)(okHandler)

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithActor(req.Context(), workflow.Actor{ID: "ed", Capabilities: workflow.Capabilities{Review: true}}))
	rr = httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "permission_denied", decodeAPIError(t, rr).Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithActor(req.Context(), workflow.Actor{ID: "pat", Capabilities: workflow.Capabilities{Publish: true}}))
	rr = httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimiterPerActor(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	wrapped := ActorFromHeaders(rl.Middleware()(okHandler))

	send := func(actor string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		if actor != "" {
			req.Header.Set(HeaderActorID, actor)
		}
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("alice"))
	assert.Equal(t, http.StatusOK, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))

	// Other actors and anonymous callers have their own buckets.
	assert.Equal(t, http.StatusOK, send("ed"))
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}

func TestLimiterCacheResetsWhenFull(t *testing.T) {
	lc := newLimiterCache[string](1, 1, 2)
	lc.get("a")
	lc.get("b")
	lc.get("c")

	lc.mu.RLock()
	defer lc.mu.RUnlock()
	assert.Len(t, lc.limiters, 1)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:41234"
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", clientIP(req))
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(DefaultSecurityHeadersConfig(false))(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))

	rr = httptest.NewRecorder()
	SecurityHeaders(DefaultSecurityHeadersConfig(true))(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	failing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	wrapped := chimw.RequestID(ActorFromHeaders(RequestLogger(logger)(failing)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/content/abc/transitions", nil)
	req.Header.Set(HeaderActorID, "ed")
	wrapped.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=503")
	assert.Contains(t, out, "actor=ed")
	assert.Contains(t, out, "path=/api/v1/content/abc/transitions")
}

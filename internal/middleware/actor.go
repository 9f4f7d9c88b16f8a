// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/olegiv/ocms-editorial/internal/workflow"
)

// Headers set by the upstream gateway after it authenticated the user.
const (
	HeaderActorID           = "X-Actor-ID"
	HeaderActorCapabilities = "X-Actor-Capabilities"
)

// MaxActorIDLength bounds the X-Actor-ID header.
const MaxActorIDLength = 128

// ContextKeyActor is the context key for the request's actor.
const ContextKeyActor ContextKey = "actor"

// ActorFromHeaders resolves the acting user from the gateway headers and
// stores it in the request context. Requests without X-Actor-ID pass through
// with no actor; an over-long id is rejected.
func ActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActorID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(id) > MaxActorIDLength {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "X-Actor-ID is too long", nil)
			return
		}

		actor := workflow.Actor{
			ID:           id,
			Capabilities: workflow.ParseCapabilities(r.Header.Get(HeaderActorCapabilities)),
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor workflow.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// GetActor returns the request's actor, if any.
func GetActor(r *http.Request) (workflow.Actor, bool) {
	actor, ok := r.Context().Value(ContextKeyActor).(workflow.Actor)
	return actor, ok
}

// RequireActor rejects requests that carry no actor.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetActor(r); !ok {
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "X-Actor-ID header required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability rejects requests whose actor lacks capability.
func RequireCapability(capability workflow.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActor(r)
			if !ok {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "X-Actor-ID header required", nil)
				return
			}
			if !actor.Capabilities.Has(capability) {
				WriteAPIError(w, http.StatusForbidden, "permission_denied", "Actor lacks required capability: "+string(capability), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

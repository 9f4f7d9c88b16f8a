// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Timeout bounds each request to d. When the handler overruns, the client
// gets a 503 "timeout" error and anything the handler writes afterwards is
// dropped. The handler keeps running until it observes ctx.Done(), so
// storage calls must honor the request context. A non-positive d disables
// the bound.
//
// Panics inside the handler are re-raised on the serving goroutine so an
// outer Recoverer still sees them.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{w: w, h: make(http.Header)}
			done := make(chan struct{})
			panicked := make(chan any, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
					close(done)
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()

			select {
			case <-done:
				select {
				case p := <-panicked:
					panic(p)
				default:
				}
			case <-ctx.Done():
				if tw.expire() {
					slog.Warn("request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", chimw.GetReqID(r.Context()),
						"timeout", d.String(),
					)
					WriteAPIError(w, http.StatusServiceUnavailable, "timeout", "Request timeout",
						map[string]any{"timeout": d.String(), "retryable": true})
				}
			}
		})
	}
}

// timeoutWriter isolates the handler's headers and body from the real
// writer until the handler commits a status, so the timeout path never
// shares state with a still-running handler.
type timeoutWriter struct {
	w http.ResponseWriter
	h http.Header

	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.h }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.commitLocked(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	tw.commitLocked(http.StatusOK)
	return tw.w.Write(b)
}

// commitLocked copies buffered headers and sends the status once.
func (tw *timeoutWriter) commitLocked(code int) {
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	dst := tw.w.Header()
	for k, vv := range tw.h {
		dst[k] = append([]string(nil), vv...)
	}
	tw.w.WriteHeader(code)
}

// expire marks the writer as timed out and reports whether the caller may
// still send the timeout response.
func (tw *timeoutWriter) expire() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.timedOut = true
	return !tw.wroteHeader
}

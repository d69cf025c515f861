// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

// Package middleware implements HTTP middleware shared by the proxy's handlers.
package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader is set on every response and identifies the request in the proxy's logs.
const RequestIDHeader = "X-Request-Id"

type loggerKey struct{}

// NewResponseRecorder returns a *ResponseRecorder that records the status code
// and, if recordBody is set, the response body while still forwarding data to the
// underlying http.ResponseWriter.
func NewResponseRecorder(w http.ResponseWriter, recordBody bool) *ResponseRecorder {
	return &ResponseRecorder{
		ResponseWriter: w,
		recordBody:     recordBody,
	}
}

// ResponseRecorder records the HTTP response that is being written. It embeds
// http.ResponseWriter so it can be passed directly to handlers.
type ResponseRecorder struct {
	http.ResponseWriter
	// ResWriteErr stores the first error encountered when writing to the client.
	ResWriteErr error
	// Status holds the HTTP status code written via WriteHeader.
	Status int
	// Body contains the full response payload if body recording is enabled.
	Body bytes.Buffer

	recordBody bool
}

// WriteHeader records the HTTP status code and forwards the call to the underlying http.ResponseWriter.
func (w *ResponseRecorder) WriteHeader(status int) {
	if w.Status == 0 {
		w.Status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *ResponseRecorder) Write(b []byte) (int, error) {
	if w.Status == 0 {
		w.Status = http.StatusOK
	}
	// Only write to the remote client if we haven't already encountered an error.
	if w.ResWriteErr == nil {
		_, w.ResWriteErr = w.ResponseWriter.Write(b)
	}
	if w.recordBody {
		return w.Body.Write(b)
	}
	return len(b), w.ResWriteErr
}

// Flush implements http.Flusher by delegating to the underlying ResponseWriter if it supports flushing.
func (w *ResponseRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// StatusCode returns the recorded status, defaulting to 200 if the handler wrote nothing.
func (w *ResponseRecorder) StatusCode() int {
	if w.Status == 0 {
		return http.StatusOK
	}
	return w.Status
}

type requestObserver interface {
	ObserveRequest(method, path string, status int, duration time.Duration)
}

// RequestLogger assigns every request an ID, stores a logger carrying that ID in the request context,
// and logs and records the outcome once the request is served.
func RequestLogger(next http.Handler, log *slog.Logger, observer requestObserver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		// handlers may rewrite URL and headers before forwarding
		method, path, contentType := r.Method, r.URL.Path, r.Header.Get("Content-Type")
		requestID := uuid.NewString()
		reqLog := log.With("requestID", requestID)
		w.Header().Set(RequestIDHeader, requestID)

		rec := NewResponseRecorder(w, false)
		next.ServeHTTP(rec, r.WithContext(WithLogger(r.Context(), reqLog)))

		duration := time.Since(start)
		observer.ObserveRequest(method, pathLabel(path), rec.StatusCode(), duration)
		reqLog.Info("Request served",
			"method", method,
			"path", path,
			"contentType", contentType,
			"status", rec.StatusCode(),
			"duration", duration,
		)
	})
}

// pathLabel maps unknown paths to "other" to bound label cardinality.
func pathLabel(path string) string {
	switch path {
	case "/invocations", "/ping", "/metrics":
		return path
	default:
		return "other"
	}
}

// WithLogger returns a copy of ctx carrying the given logger.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// Logger returns the logger stored in ctx, or fallback if there is none.
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return log
	}
	return fallback
}

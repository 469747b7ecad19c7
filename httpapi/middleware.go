package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearway/submitonce"
)

// Wrap layers the standard middleware around an API handler: panic
// recovery outermost, then request logging, trace-id stamping and, when
// limiter is non-nil, per-client rate limiting.
func Wrap(logger submitonce.Logger, limiter *RateLimiter, next http.Handler) http.Handler {
	return recoverMiddleware(logger, requestLogMiddleware(logger, traceIDMiddleware(rateLimitMiddleware(limiter, next))))
}

type ctxKeyTraceID struct{}

// TraceIDFromContext returns the trace id stamped by Wrap.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyTraceID{}).(string)

	return v, ok
}

func traceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerTraceID))
		if id == "" {
			id = uuid.NewString()
		}

		r.Header.Set(headerTraceID, id)
		w.Header().Set(headerTraceID, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyTraceID{}, id))
		next.ServeHTTP(w, r)
	})
}

func rateLimitMiddleware(limiter *RateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientKey(r), time.Now()) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limited"})

			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller for rate limiting: the first
// X-Forwarded-For hop when present, the remote host otherwise.
func clientKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")

		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || strings.TrimSpace(host) == "" {
		return strings.TrimSpace(r.RemoteAddr)
	}

	return host
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func requestLogMiddleware(logger submitonce.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		// The stamped context lives on the inner request copy; the response
		// header carries the trace id back out to this layer.
		attrs := []any{
			"trace_id", sw.Header().Get(headerTraceID),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		// 503 is a nominal protocol outcome here, not a server fault.
		if sw.status >= http.StatusInternalServerError && sw.status != http.StatusServiceUnavailable {
			logger.Error("http request", attrs...)

			return
		}
		logger.Info("http request", attrs...)
	})
}

func recoverMiddleware(logger submitonce.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("http panic recovered", "trace_id", w.Header().Get(headerTraceID), "panic", v)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

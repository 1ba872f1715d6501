package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ragworks/rag-engine/internal/guardrails"
	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/ragerr"
)

// Trace propagates the caller's X-Trace-ID (or mints one) through the
// request context and echoes it on the response.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}
		w.Header().Set("X-Trace-ID", traceID)
		ctx := observability.ContextWithTraceID(r.Context(), traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit enforces the per-client sliding-window limit. Clients are
// keyed by X-User-ID when present, falling back to the remote address
// (normalized by chi's RealIP middleware upstream).
func RateLimit(limiter *guardrails.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-User-ID")
			if key == "" {
				key = r.RemoteAddr
			}
			allowed, retryAfter := limiter.Allow(key)
			if !allowed {
				writeError(w, r, ragerr.NewRateLimit(
					"Rate limit exceeded. Please slow down.", retryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows cross-origin calls from the given origins ("*" for any).
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID, X-User-ID")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

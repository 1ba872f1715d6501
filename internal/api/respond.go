// Package api provides the HTTP surface: routing, middleware, request
// handlers, and the standardized error envelope.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ragworks/rag-engine/internal/observability"
	"github.com/ragworks/rag-engine/internal/ragerr"
)

// errorBody is the wire form of a failed request.
type errorBody struct {
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	TraceID    string                 `json:"trace_id,omitempty"`
	Timestamp  string                 `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeJSON writes v with the given status. The X-Trace-ID header is set
// by middleware before handlers run.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps any error to the standardized envelope. Domain errors
// keep their status, code, and details; everything else becomes a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := observability.TraceIDFromContext(r.Context())

	e := ragerr.AsError(err)
	if e == nil {
		e = ragerr.New(http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}

	if e.StatusCode == http.StatusTooManyRequests {
		if retryAfter, ok := e.Details["retry_after_seconds"].(int); ok && retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	writeJSON(w, e.StatusCode, errorEnvelope{Error: errorBody{
		Type:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		TraceID:    traceID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Details:    e.Details,
	}})
}

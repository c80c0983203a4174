// Package shield holds the HTTP middleware every canvas listener runs:
// security headers, request body limits, trace ids with a per-request
// logger, per-IP rate limiting and the maintenance switch.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(mm, rl) {
//	    r.Use(mw)
//	}
package shield

import (
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// MaxJSONBody is the default cap on JSON request bodies. A full layout
// snapshot is the largest payload a client sends.
const MaxJSONBody = 2 << 20

// Stack returns the standard middleware order:
// Maintenance, HeadToGet, SecurityHeaders, MaxBody, TraceID, RateLimiter.
// Nil arguments are skipped.
func Stack(mm *MaintenanceMode, rl *RateLimiter) []func(http.Handler) http.Handler {
	var stack []func(http.Handler) http.Handler
	if mm != nil {
		stack = append(stack, mm.Middleware)
	}
	stack = append(stack,
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(MaxJSONBody),
		TraceID,
	)
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	return stack
}

// HeadToGet converts HEAD requests to GET so routes registered with
// r.Get() answer HEAD probes. net/http strips the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBody limits request bodies of JSON and form posts to maxBytes.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if strings.HasPrefix(ct, "application/json") || ct == "application/x-www-form-urlencoded" {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/mcp"
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

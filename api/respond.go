package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hazyhaar/canvas/auth"
	"github.com/hazyhaar/canvas/channel"
	"github.com/hazyhaar/canvas/mutation"
	"github.com/hazyhaar/canvas/sanitize"
	"github.com/hazyhaar/canvas/session"
	"github.com/hazyhaar/canvas/shield"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, channel.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, mutation.ErrValidation),
		errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, sanitize.ErrUnsafeScheme),
		errors.Is(err, sanitize.ErrUnsafeStyle),
		errors.Is(err, sanitize.ErrMarkup),
		errors.Is(err, sanitize.ErrTooLong),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrOwnerExists), errors.Is(err, channel.ErrActorInUse):
		return http.StatusConflict
	case errors.Is(err, channel.ErrRateLimited):
		return http.StatusTooManyRequests
	case channel.IsTransport(err), errors.Is(err, channel.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError answers with the status matching err. Internal errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		shield.GetLogger(r.Context()).Error("api: request failed", "error", err)
		msg = "internal error"
	case http.StatusServiceUnavailable:
		shield.GetLogger(r.Context()).Warn("api: transport failure", "error", err)
		w.Header().Set("Retry-After", "1")
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

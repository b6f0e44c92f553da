package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"hrdesk.org/internal/account"
	"hrdesk.org/internal/directory"
	"hrdesk.org/internal/workflow"
)

type requestIDContextKey struct{}

// errAccessDenied marks a caller acting on a resource they do not own.
var errAccessDenied = errors.New("access denied")

// RequestIDFromContext returns the request id assigned by the RequestID
// middleware.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return v
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleError maps domain sentinels onto HTTP status codes. Anything
// unmapped is a 500 with the detail kept out of the response.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidCredentials),
		errors.Is(err, account.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, account.ErrNotVerified),
		errors.Is(err, account.ErrDeactivated),
		errors.Is(err, errAccessDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, account.ErrDuplicateEmail),
		errors.Is(err, directory.ErrDuplicateAccountLink):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, directory.ErrDepartmentNotFound),
		errors.Is(err, directory.ErrPositionNotFound),
		errors.Is(err, workflow.ErrRequestNotFound),
		errors.Is(err, workflow.ErrEmployeeNotFound),
		errors.Is(err, workflow.ErrWorkflowNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For support (first IP)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

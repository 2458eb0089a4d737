package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/lexhub/agentrun/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAgentError maps an engine error to an HTTP status and writes it.
func writeAgentError(w http.ResponseWriter, err error) {
	var agentErr *schema.AgentError
	if !errors.As(err, &agentErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := map[string]any{
		"error": agentErr.Message,
		"code":  agentErr.Code,
	}
	if len(agentErr.Details) > 0 {
		body["details"] = agentErr.Details
	}
	writeJSON(w, statusFor(agentErr.Code), body)
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeInactiveAgent, schema.ErrCodeValidation, schema.ErrCodeMissingParameter:
		return http.StatusBadRequest
	case schema.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// orgID extracts the caller's organization from the request.
func orgID(r *http.Request) string {
	return r.Header.Get("X-Org-ID")
}

// userID extracts the caller's user identity from the request.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// bearerToken extracts the bearer token from the Authorization header.
// Tools forward it to downstream services as-is.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

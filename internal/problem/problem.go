// Package problem writes RFC 7807 Problem Details responses for every HTTP
// surface of the engine.
package problem

import (
	"encoding/json"
	"net/http"
)

// Problem types.
const (
	TypeBadRequest   = "https://turbinewatch.dev/problems/bad-request"
	TypeUnauthorized = "https://turbinewatch.dev/problems/unauthorized"
	TypeForbidden    = "https://turbinewatch.dev/problems/forbidden"
	TypeNotFound     = "https://turbinewatch.dev/problems/not-found"
	TypeRateLimited  = "https://turbinewatch.dev/problems/rate-limited"
	TypeInternal     = "https://turbinewatch.dev/problems/internal-error"
	TypeUnavailable  = "https://turbinewatch.dev/problems/unavailable"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// Write writes p as an application/problem+json response.
func Write(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func write(w http.ResponseWriter, typ string, status int, detail, instance string) {
	Write(w, Problem{
		Type:     typ,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	write(w, TypeBadRequest, http.StatusBadRequest, detail, instance)
}

// Unauthorized writes a 401 problem response.
func Unauthorized(w http.ResponseWriter, detail, instance string) {
	write(w, TypeUnauthorized, http.StatusUnauthorized, detail, instance)
}

// Forbidden writes a 403 problem response.
func Forbidden(w http.ResponseWriter, detail, instance string) {
	write(w, TypeForbidden, http.StatusForbidden, detail, instance)
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	write(w, TypeNotFound, http.StatusNotFound, detail, instance)
}

// RateLimited writes a 429 problem response asking the client to retry
// after one second.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	w.Header().Set("Retry-After", "1")
	write(w, TypeRateLimited, http.StatusTooManyRequests, detail, instance)
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	write(w, TypeInternal, http.StatusInternalServerError, detail, instance)
}

// Unavailable writes a 503 problem response. A non-empty retryAfter is
// sent as the Retry-After header.
func Unavailable(w http.ResponseWriter, detail, instance, retryAfter string) {
	if retryAfter != "" {
		w.Header().Set("Retry-After", retryAfter)
	}
	write(w, TypeUnavailable, http.StatusServiceUnavailable, detail, instance)
}

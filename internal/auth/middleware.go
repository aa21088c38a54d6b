package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/HerbHall/turbinewatch/internal/problem"
)

// claimsKey is a context key for the authenticated caller.
type claimsKey struct{}

// ClaimsFromContext returns the authenticated caller from the request context.
// Returns nil if the request is not authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(claimsKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// WithClaims returns a copy of ctx carrying c.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// Middleware validates bearer tokens on API routes.
// Non-API paths (healthz, readyz, metrics) and WebSocket paths are skipped;
// the WebSocket handler validates its own ?token= parameter.
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/api/v1/ws/") {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				problem.Unauthorized(w, "missing or invalid authorization header", r.URL.Path)
				return
			}

			claims, err := tokens.Validate(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				problem.Unauthorized(w, "invalid or expired access token", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole wraps next so that only callers whose token allows role reach
// it. Requests without claims pass through untouched, which is the case
// when authentication is disabled.
func RequireRole(role Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := ClaimsFromContext(r.Context())
		if c != nil && !c.Role.Allows(role) {
			problem.Forbidden(w, "token role "+string(c.Role)+" may not access this resource", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

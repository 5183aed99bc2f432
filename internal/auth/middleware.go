package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is the context key type for user claims.
type contextKey string

// UserClaimsKey is the context key for user claims.
const UserClaimsKey = contextKey("userClaims")

// Verifier validates session tokens.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// UnauthorizedFunc writes the response for a missing or rejected token.
type UnauthorizedFunc func(w http.ResponseWriter, r *http.Request)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ClaimsFromContext returns the verified claims placed by the middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, UserClaimsKey, claims)
}

// JWTMiddleware creates a middleware for protecting routes. Requests without
// a valid bearer token are answered by deny.
func JWTMiddleware(v Verifier, deny UnauthorizedFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := BearerToken(r)
			if tokenStr == "" {
				deny(w, r)
				return
			}

			claims, err := v.Verify(tokenStr)
			if err != nil {
				deny(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalJWTMiddleware lets anonymous requests through but rejects a bearer
// token that is present and invalid, so clients learn their session is dead.
func OptionalJWTMiddleware(v Verifier, deny UnauthorizedFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := BearerToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.Verify(tokenStr)
			if err != nil {
				deny(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

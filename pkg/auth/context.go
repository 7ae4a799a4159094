package auth

import (
	"context"
)

type contextKey string

const claimsKey contextKey = "jwt_claims"

// AddClaimsToContext fügt JWT-Claims zum Kontext hinzu
func AddClaimsToContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extrahiert die JWT-Claims aus dem Kontext
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// SessionIDFromContext returns the session ID, or "" without claims.
func SessionIDFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.SessionID
	}
	return ""
}

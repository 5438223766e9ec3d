package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	domain "baseproof/pkg/domain"
	"baseproof/pkg/requestcontext"
)

// TokenValidator validates bearer tokens and yields the claims the registry
// cares about.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims carries the authenticated caller identity.
type TokenClaims struct {
	Actor domain.Address
}

// RequireAuth rejects requests without a valid bearer token and puts the
// caller address into the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := bearerClaims(validator, r)
			if !ok {
				logger.WarnContext(r.Context(), "unauthorized access",
					"request_id", GetRequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"missing or invalid bearer token"}`))
				return
			}
			ctx := requestcontext.WithActor(r.Context(), claims.Actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the caller address when a valid token is present and
// otherwise passes the request through anonymously. Read endpoints use this:
// privacy gating treats the zero actor as an unrelated caller.
func OptionalAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := bearerClaims(validator, r); ok {
				ctx := requestcontext.WithActor(r.Context(), claims.Actor)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerClaims(validator TokenValidator, r *http.Request) (*TokenClaims, bool) {
	const bearerPrefix = "Bearer "
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok || token == "" {
		return nil, false
	}
	claims, err := validator.ValidateToken(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

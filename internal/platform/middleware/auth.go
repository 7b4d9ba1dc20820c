package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"iris/pkg/requestcontext"

	id "iris/pkg/domain"
)

// TokenValidator validates a bearer token and returns the principal it names.
type TokenValidator interface {
	ValidateToken(tokenString string) (id.PrincipalID, error)
}

// APITokenVerifier checks a long-lived API token against its stored hash.
// Used by CLI clients that hold no browser session.
type APITokenVerifier interface {
	VerifyToken(ctx context.Context, principal id.PrincipalID, token string) error
}

// RequireAuth authenticates each request and injects the principal into the
// context. Two schemes are accepted:
//
//	Authorization: Bearer <jwt>
//	X-API-Key: <principal-id>:<token>
//
// Everything behind this middleware runs with a concrete principal; the
// storage guard rejects anonymous contexts anyway, this just fails earlier
// with a clean 401.
func RequireAuth(validator TokenValidator, apiTokens APITokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				principal, err := validator.ValidateToken(after)
				if err != nil {
					unauthorized(ctx, w, logger, "invalid token", err)
					return
				}
				next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
				return
			}

			if key := r.Header.Get("X-API-Key"); key != "" {
				principalPart, tokenPart, ok := strings.Cut(key, ":")
				if !ok {
					unauthorized(ctx, w, logger, "malformed API key", nil)
					return
				}
				principal, err := id.ParsePrincipalID(principalPart)
				if err != nil {
					unauthorized(ctx, w, logger, "malformed API key", err)
					return
				}
				if err := apiTokens.VerifyToken(ctx, principal, tokenPart); err != nil {
					unauthorized(ctx, w, logger, "invalid API key", err)
					return
				}
				next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
				return
			}

			unauthorized(ctx, w, logger, "missing credentials", nil)
		})
	}
}

func unauthorized(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, reason string, err error) {
	logger.WarnContext(ctx, "unauthorized access",
		"reason", reason,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, werr := w.Write([]byte(`{"error":"unauthorized","error_description":"Missing or invalid credentials"}`)); werr != nil {
		logger.ErrorContext(ctx, "failed to write unauthorized response", "error", werr)
	}
}

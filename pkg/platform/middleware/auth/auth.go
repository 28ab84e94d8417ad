package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"erasure/pkg/platform/httputil"
	"erasure/pkg/requestcontext"

	dErrors "erasure/pkg/domain-errors"
)

// Claims carries the validated identity of the caller.
type Claims struct {
	UserID    string
	SessionID string
	Role      string
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type actorKey struct{}

// Actor retrieves the authenticated actor from the context.
func Actor(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(actorKey{}).(Claims)
	return claims, ok
}

// WithActor injects actor claims into a context. Exposed for handler tests
// that bypass the middleware chain.
func WithActor(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, actorKey{}, claims)
}

// RequireAuth validates the bearer token and injects the actor claims. Any
// authenticated user passes; role checks belong to the handler or a stricter
// middleware.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}

			ctx := WithActor(r.Context(), *claims)
			if claims.SessionID != "" {
				ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin guards privileged deletion endpoints. The bearer token must be
// valid and carry the admin role.
func RequireAdmin(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if claims.Role != "ADMIN" {
				logger.WarnContext(r.Context(), "non-admin token on admin endpoint",
					"user_id", claims.UserID,
					"role", claims.Role,
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
				return
			}

			ctx := WithActor(r.Context(), *claims)
			if claims.SessionID != "" {
				ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

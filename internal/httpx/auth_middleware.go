package httpx

import (
	"context"
	"net/http"
	"strings"

	"lendingapi/internal/platform/crypto"
)

// Blacklist reports whether an access token was revoked before it expired.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

func AuthMiddleware(secret string, blacklist Blacklist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				Unauthorized(w, r)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			claims, err := crypto.ParseToken(secret, token)
			if err != nil {
				Unauthorized(w, r)
				return
			}

			if blacklist != nil && claims.ID != "" {
				revoked, err := blacklist.IsBlacklisted(r.Context(), claims.ID)
				if err != nil {
					Unavailable(w, r)
					return
				}
				if revoked {
					Unauthorized(w, r)
					return
				}
			}

			ctx := ContextWithUser(r.Context(), claims.Sub, claims.Role)
			ctx = ContextWithTokenID(ctx, claims.ID)
			recordUser(ctx, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through only callers whose token carries one of roles.
// It must run after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserIDFrom(r) == "" {
				Unauthorized(w, r)
				return
			}
			if !allowed[RoleFrom(r)] {
				Forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares so the first one listed is outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Guards wraps handlers with the authentication and role checks routes need.
type Guards struct {
	Auth  func(http.Handler) http.Handler
	Admin func(http.Handler) http.Handler
}

func NewGuards(secret string, blacklist Blacklist) Guards {
	return Guards{
		Auth:  AuthMiddleware(secret, blacklist),
		Admin: RequireRole("ADMIN"),
	}
}

// Member requires any authenticated caller.
func (g Guards) Member(h http.HandlerFunc) http.Handler {
	return g.Auth(h)
}

// AdminOnly requires an authenticated ADMIN.
func (g Guards) AdminOnly(h http.HandlerFunc) http.Handler {
	return g.Auth(g.Admin(h))
}

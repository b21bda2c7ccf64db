package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/redmonkez12/contacts-api/internal/httputil"
	"github.com/redmonkez12/contacts-api/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	// CurrentUserContextKey holds the resolved *user.User for the request
	CurrentUserContextKey ContextKey = "current_user"
)

// Middleware handles authentication for protected routes
type Middleware struct {
	service *Service
}

func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// RequireAuth validates the access token and resolves the current user
// through the session cache (database fallback on a miss)
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		// Priority 1: Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			} else {
				httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
				return
			}
		}

		// Priority 2: Cookie (fallback)
		if token == "" {
			cookieToken, err := GetAccessTokenFromCookie(r)
			if err != nil {
				httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
				return
			}
			token = cookieToken
		}

		currentUser, err := m.service.CurrentUser(r.Context(), token)
		if err != nil {
			httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), CurrentUserContextKey, currentUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCurrentUserFromContext extracts the authenticated user from the request context
func GetCurrentUserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(CurrentUserContextKey).(*user.User)
	return u, ok
}

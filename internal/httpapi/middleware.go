package httpapi

import (
	"context"
	"net/http"
	"strings"

	"exchange-core/internal/apperr"
	"exchange-core/internal/models"
)

type contextKey int

const userContextKey contextKey = 0

// requireAuth resolves the caller's identity from an `Authorization: TOKEN
// <api_key>` header (the scheme name is matched case-insensitively) and
// stores it in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, apperr.Unauthenticated("authorization header is missing"))
			return
		}
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "token") {
			writeError(w, apperr.Unauthenticated("invalid authorization header format"))
			return
		}

		user, err := s.users.GetByAPIKey(r.Context(), s.db, parts[1])
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin wraps requireAuth and additionally rejects non-admin callers.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user.Role != models.RoleAdmin {
			writeError(w, apperr.Forbidden("admin privileges required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func userFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

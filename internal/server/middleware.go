package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"monpecule/internal/modules/identity"
)

type contextKey string

const userContextKey contextKey = "user"

// sessionMiddleware resolves the bearer token (or session cookie) to a
// user and stores it on the request context.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie("session"); err == nil {
				token = cookie.Value
			}
		}

		user, err := s.cfg.Identity.Authenticate(token)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if user == nil {
			s.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware guards administrative triggers with the shared token.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := s.cfg.Cfg.AdminToken
		if expected == "" {
			s.writeError(w, http.StatusForbidden, "admin surface disabled")
			return
		}
		provided := bearerToken(r)
		if provided == "" {
			provided = r.Header.Get("X-Admin-Token")
		}
		if provided == "" {
			provided = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			s.writeError(w, http.StatusForbidden, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// currentUser returns the authenticated user stored by sessionMiddleware.
func currentUser(r *http.Request) *identity.User {
	user, _ := r.Context().Value(userContextKey).(*identity.User)
	return user
}

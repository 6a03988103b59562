package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"printshop/internal/audit"
	"printshop/internal/identity"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionFrom returns the authenticated session stored by AuthMiddleware.
func SessionFrom(ctx context.Context) *identity.Session {
	s, _ := ctx.Value(sessionKey).(*identity.Session)
	return s
}

// AuthMiddleware resolves the bearer token through the identity provider and
// optionally restricts the route to the given roles. Every authenticated
// request goes through the provider; there are no special-account bypasses.
func AuthMiddleware(provider identity.Provider, roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="printshop"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			session, err := provider.Session(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if len(roles) > 0 && !roleInList(session.Role, roles) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func LogMiddleware(auditPool *audit.Pool, methods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if methodInList(r.Method, methods) {
				log.Printf("[%s] %s", r.Method, r.URL.Path)
				if auditPool != nil {
					auditPool.Log(audit.Transition{
						Timestamp: time.Now().UTC(),
						Endpoint:  r.URL.Path,
						Message:   r.Method + " " + r.URL.String(),
					})
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func roleInList(role identity.Role, roles []identity.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func methodInList(method string, methods []string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

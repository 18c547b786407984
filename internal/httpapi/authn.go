package httpapi

import (
	"errors"
	"net/http"

	"authgate.org/internal/auth"
	"authgate.org/internal/session"
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/token",
	"/v1/auth/csrf",
	"/v1/auth/forgot",
	"/v1/auth/reset",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withAuth validates the session token (cookie or bearer) on protected
// paths and stores the re-resolved user on the context. Validation fails
// closed: any parse or lookup failure is a 401.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.issuer == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.issuer.AuthenticateRequest(r)
		if err != nil {
			if errors.Is(err, session.ErrUnauthorized) {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithUser(r.Context(), user)
		if token, ok := session.TokenFromRequest(r); ok {
			ctx = auth.ContextWithToken(ctx, token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser fetches the authenticated user placed by withAuth,
// responding 401 itself when absent.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return user, true
}

// requireAdmin gates administrative operations on the Admin flag.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return nil, false
	}
	if !user.Admin {
		writeError(w, r, http.StatusForbidden, "not enough permissions")
		return nil, false
	}
	return user, true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

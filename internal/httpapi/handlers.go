package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
	"authgate.org/internal/ratelimit"
	"authgate.org/internal/resetflow"
	"authgate.org/internal/session"
)

// ReadyProbe reports readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the collaborators the HTTP layer composes. Every dependency is
// injected; the package holds no globals.
type Deps struct {
	Auth     *auth.Service
	Sessions *session.Issuer
	CSRF     *session.CSRFGuard
	Resets   *resetflow.Manager
	Limiter  *ratelimit.Limiter
	Ready    ReadyProbe
	Version  string
}

// API is the HTTP boundary of the authentication subsystem.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	authsvc *auth.Service
	issuer  *session.Issuer
	csrf    *session.CSRFGuard
	resets  *resetflow.Manager
	limiter *ratelimit.Limiter
}

func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: deps.Ready,
		version:    deps.Version,
		authsvc:    deps.Auth,
		issuer:     deps.Sessions,
		csrf:       deps.CSRF,
		resets:     deps.Resets,
		limiter:    deps.Limiter,
	}

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// authentication flows
	a.mux.HandleFunc("/v1/auth/register", a.limited(ratelimit.ClassRegister, a.handleRegister))
	a.mux.HandleFunc("/v1/auth/token", a.limited(ratelimit.ClassLogin, a.handleLogin))
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/csrf", a.handleCSRF)
	a.mux.HandleFunc("/v1/auth/forgot", a.limited(ratelimit.ClassResetRequest, a.handleForgot))
	a.mux.HandleFunc("/v1/auth/reset", a.handleReset)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)

	// account surface
	a.mux.HandleFunc("/v1/users/me", a.handleMe)
	a.mux.HandleFunc("/v1/users", a.handleUsers)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = LoggingJSON(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- operational handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authgate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// isFormRequest reports whether the submission came from an HTML form,
// which is the flavor the CSRF guard protects.
func isFormRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

// ensureCSRF rejects form submissions whose double-submit pair does not
// match. JSON/bearer calls are not forgeable cross-site and pass through.
func (a *API) ensureCSRF(w http.ResponseWriter, r *http.Request) bool {
	if !isFormRequest(r) {
		return true
	}
	if err := a.csrf.Verify(r, session.SubmittedCSRF(r)); err != nil {
		writeError(w, r, http.StatusForbidden, "csrf verification failed")
		return false
	}
	return true
}

// handleAuthError maps the domain error taxonomy onto HTTP responses.
// Store outages deliberately surface as an opaque 500.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, session.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, resetflow.ErrTokenExpired):
		writeError(w, r, http.StatusBadRequest, "reset link expired")
	case errors.Is(err, resetflow.ErrTokenUsed):
		writeError(w, r, http.StatusBadRequest, "reset link already used")
	case errors.Is(err, resetflow.ErrTokenInvalid):
		writeError(w, r, http.StatusBadRequest, "reset link invalid")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// userResponse is the outward user shape; the password hash never leaves
// the service.
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Active    bool      `json:"active"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Active:    u.Active,
		Admin:     u.Admin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

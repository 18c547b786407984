package httpapi

import (
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/audit"
	"authgate.org/internal/obs"
)

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type updateProfileRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureCSRF(w, r) {
		return
	}

	var req registerRequest
	if isFormRequest(r) {
		req.Email = r.PostFormValue("email")
		req.FullName = r.PostFormValue("full_name")
		req.Password = r.PostFormValue("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.authsvc.Register(r.Context(), req.Email, req.FullName, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureCSRF(w, r) {
		return
	}

	var req loginRequest
	if isFormRequest(r) {
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
		req.RememberMe = strings.EqualFold(r.PostFormValue("remember_me"), "true")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sess, user, err := a.issuer.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		obs.ObserveLogin("invalid_credentials")
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"ip": clientIP(r)})
		handleAuthError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{"user_id": user.ID})

	// Browser flows read the cookie; API clients read the body. Both carry
	// the identical token.
	a.issuer.SetSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: sess.Token,
		TokenType:   "bearer",
		ExpiresAt:   sess.ExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureCSRF(w, r) {
		return
	}
	a.issuer.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleCSRF mints a double-submit token. Page renders call this before
// showing any state-changing form; the body echoes the cookie value for
// embedding.
func (a *API) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := a.csrf.Mint()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.csrf.Attach(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": token})
}

func (a *API) handleForgot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureCSRF(w, r) {
		return
	}

	var req forgotRequest
	if isFormRequest(r) {
		req.Email = r.PostFormValue("email")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.resets.RequestReset(r.Context(), req.Email); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	// Same body whether or not the address matched an account.
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "ok"})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureCSRF(w, r) {
		return
	}

	var req resetRequest
	if isFormRequest(r) {
		req.Token = r.PostFormValue("token")
		req.NewPassword = r.PostFormValue("new_password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.resets.Redeem(r.Context(), req.Token, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	if !a.ensureCSRF(w, r) {
		return
	}

	var req changePasswordRequest
	if isFormRequest(r) {
		req.CurrentPassword = r.PostFormValue("current_password")
		req.NewPassword = r.PostFormValue("new_password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.authsvc.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password.changed", map[string]any{"user_id": user.ID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user, ok := a.currentUser(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	case http.MethodPut:
		user, ok := a.currentUser(w, r)
		if !ok {
			return
		}
		if !a.ensureCSRF(w, r) {
			return
		}
		var req updateProfileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.authsvc.UpdateProfile(r.Context(), user.ID, req.Email, req.FullName)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(updated))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	users, err := a.authsvc.ListUsers(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

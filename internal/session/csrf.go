package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const (
	// CSRFCookieName holds the double-submit cookie. It is deliberately
	// not HttpOnly: rendered forms must be able to echo the value back.
	CSRFCookieName = "csrftoken"

	// CSRFHeaderName is the header form clients may use instead of a
	// form field.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenBytes = 32
	csrfCookieTTL  = 1 * time.Hour
)

// CSRFGuard implements the double-submit pattern: a random token is set as
// a readable cookie and must be echoed byte-for-byte in the submission.
// No server-side state is consulted.
type CSRFGuard struct {
	secure bool
}

// NewCSRFGuard constructs a guard. secure controls the cookie's Secure
// attribute and should follow the deployment environment.
func NewCSRFGuard(secure bool) *CSRFGuard {
	return &CSRFGuard{secure: secure}
}

// Mint returns a fresh URL-safe random token.
func (g *CSRFGuard) Mint() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Attach sets the token as a cookie readable by forms and scripts. Its
// lifetime is independent of the session token's.
func (g *CSRFGuard) Attach(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfCookieTTL.Seconds()),
		HttpOnly: false,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Verify checks the submitted value against the request's CSRF cookie.
// Absence of either side is a mismatch, not a default-allow.
func (g *CSRFGuard) Verify(r *http.Request, submitted string) error {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ErrCSRFMismatch
	}
	return VerifyCSRFValues(c.Value, submitted)
}

// SubmittedCSRF extracts the client-echoed token from the header or,
// failing that, the "csrf" form field.
func SubmittedCSRF(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(CSRFHeaderName)); v != "" {
		return v
	}
	return strings.TrimSpace(r.PostFormValue("csrf"))
}

// VerifyCSRFValues is the pure comparison: both values present and equal.
func VerifyCSRFValues(cookieValue, submitted string) error {
	cookieValue = strings.TrimSpace(cookieValue)
	submitted = strings.TrimSpace(submitted)
	if cookieValue == "" || submitted == "" {
		return ErrCSRFMismatch
	}
	if len(cookieValue) != len(submitted) {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(cookieValue), []byte(submitted)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

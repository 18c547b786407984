// Package session mints and validates browser/API session tokens and
// guards form submissions against cross-site request forgery.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"authgate.org/internal/auth"
)

const (
	// SessionCookieName carries the session token for browser flows.
	SessionCookieName = "access_token"

	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

var (
	ErrUnauthorized = errors.New("session: unauthorized")
	ErrCSRFMismatch = errors.New("session: csrf token mismatch")
)

// UserResolver is the capability the issuer needs from the account layer:
// credential verification at login and subject re-resolution at validation.
type UserResolver interface {
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
	Resolve(ctx context.Context, subject string) (*auth.User, error)
}

// Session is a freshly minted token plus the expiry embedded in it. The
// cookie max-age is derived from the same TTL, so cookie and token always
// die together.
type Session struct {
	Token     string
	ExpiresAt time.Time
	TTL       time.Duration
}

// Issuer orchestrates login: credential check, token minting, and the
// cookie/bearer split. It holds its collaborators by composition.
type Issuer struct {
	codec        *auth.Codec
	users        UserResolver
	accessTTL    time.Duration
	rememberTTL  time.Duration
	cookieSecure bool
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithAccessTTL sets the default session lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRememberMeTTL sets the extended lifetime for "remember me" logins.
func WithRememberMeTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.rememberTTL = ttl
		}
	}
}

// WithSecureCookies controls the Secure attribute on session cookies.
func WithSecureCookies(secure bool) IssuerOption {
	return func(i *Issuer) { i.cookieSecure = secure }
}

// NewIssuer constructs an Issuer over a token codec and a user resolver.
func NewIssuer(codec *auth.Codec, users UserResolver, opts ...IssuerOption) *Issuer {
	iss := &Issuer{
		codec:       codec,
		users:       users,
		accessTTL:   30 * time.Minute,
		rememberTTL: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss
}

// Login verifies credentials and mints a session token. rememberMe picks
// the extended TTL. The same token serves cookie and bearer transports.
func (i *Issuer) Login(ctx context.Context, email, password string, rememberMe bool) (*Session, *auth.User, error) {
	user, err := i.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	ttl := i.accessTTL
	if rememberMe {
		ttl = i.rememberTTL
	}
	token, expiresAt, err := i.codec.Issue(user.Email, ttl)
	if err != nil {
		return nil, nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, TTL: ttl}, user, nil
}

// SetSessionCookie attaches the session to the response for browser flows.
// Max-age equals the token TTL in seconds so the cookie never outlives the
// token, and never dies first either.
func (i *Issuer) SetSessionCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.Token,
		Path:     "/",
		MaxAge:   int(s.TTL.Seconds()),
		HttpOnly: true,
		Secure:   i.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie (logout).
func (i *Issuer) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   i.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AuthenticateRequest validates the request's session token and returns
// the current user record. The Authorization header wins when both header
// and cookie are present. The user is re-resolved from the store so a
// deactivation invalidates outstanding tokens immediately.
func (i *Issuer) AuthenticateRequest(r *http.Request) (*auth.User, error) {
	token, ok := TokenFromRequest(r)
	if !ok {
		return nil, ErrUnauthorized
	}
	claims, err := i.codec.Parse(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := i.users.Resolve(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// TokenFromRequest extracts the session token, preferring the
// Authorization: Bearer header over the session cookie.
func TokenFromRequest(r *http.Request) (string, bool) {
	if header := strings.TrimSpace(r.Header.Get(authorizationHeader)); header != "" {
		if strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
			if token := strings.TrimSpace(header[len(bearerPrefix):]); token != "" {
				return token, true
			}
		}
		return "", false
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if token := strings.TrimSpace(c.Value); token != "" {
			return token, true
		}
	}
	return "", false
}

package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"authgate.org/internal/auth"
)

type fakeResolver struct {
	user *auth.User
}

func (f *fakeResolver) Authenticate(_ context.Context, email, password string) (*auth.User, error) {
	if f.user != nil && email == f.user.Email && password == "s3cret-pass" {
		return f.user, nil
	}
	return nil, auth.ErrInvalidCredentials
}

func (f *fakeResolver) Resolve(_ context.Context, subject string) (*auth.User, error) {
	if f.user != nil && subject == f.user.Email && f.user.Active {
		return f.user, nil
	}
	return nil, auth.ErrInvalidToken
}

func newTestIssuer(t *testing.T, opts ...IssuerOption) (*Issuer, *fakeResolver) {
	t.Helper()
	codec, err := auth.NewCodec([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	users := &fakeResolver{user: &auth.User{ID: "user-1", Email: "alice@example.com", Active: true}}
	return NewIssuer(codec, users, opts...), users
}

func TestLoginTTLSelection(t *testing.T) {
	iss, _ := newTestIssuer(t, WithAccessTTL(30*time.Minute), WithRememberMeTTL(30*24*time.Hour))

	s, user, err := iss.Login(context.Background(), "alice@example.com", "s3cret-pass", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("unexpected user %q", user.ID)
	}
	if s.TTL != 30*time.Minute {
		t.Fatalf("default TTL = %v, want 30m", s.TTL)
	}

	s, _, err = iss.Login(context.Background(), "alice@example.com", "s3cret-pass", true)
	if err != nil {
		t.Fatalf("Login remember-me: %v", err)
	}
	if s.TTL != 30*24*time.Hour {
		t.Fatalf("remember-me TTL = %v, want 720h", s.TTL)
	}

	if _, _, err := iss.Login(context.Background(), "alice@example.com", "wrong", false); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("Login with bad password = %v, want ErrInvalidCredentials", err)
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	iss, _ := newTestIssuer(t, WithSecureCookies(true))

	s, _, err := iss.Login(context.Background(), "alice@example.com", "s3cret-pass", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rec := httptest.NewRecorder()
	iss.SetSessionCookie(rec, s)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != SessionCookieName || c.Value != s.Token {
		t.Fatalf("unexpected cookie %q=%q", c.Name, c.Value)
	}
	if !c.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	if !c.Secure {
		t.Fatal("session cookie must be Secure when configured")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("SameSite = %v, want Lax", c.SameSite)
	}
	if want := int(s.TTL.Seconds()); c.MaxAge != want {
		t.Fatalf("MaxAge = %d, want %d (cookie and token must expire together)", c.MaxAge, want)
	}
}

func TestClearSessionCookie(t *testing.T) {
	iss, _ := newTestIssuer(t)
	rec := httptest.NewRecorder()
	iss.ClearSessionCookie(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	if c := cookies[0]; c.Value != "" || c.MaxAge != -1 {
		t.Fatalf("logout cookie must be emptied and expired, got %+v", c)
	}
}

func TestAuthenticateRequest(t *testing.T) {
	iss, users := newTestIssuer(t)
	s, _, err := iss.Login(context.Background(), "alice@example.com", "s3cret-pass", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Bearer header.
	r := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+s.Token)
	user, err := iss.AuthenticateRequest(r)
	if err != nil {
		t.Fatalf("AuthenticateRequest bearer: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("unexpected user %q", user.ID)
	}

	// Cookie.
	r = httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.Token})
	if _, err := iss.AuthenticateRequest(r); err != nil {
		t.Fatalf("AuthenticateRequest cookie: %v", err)
	}

	// Header wins over cookie: a garbage header must not fall back.
	r = httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: s.Token})
	if _, err := iss.AuthenticateRequest(r); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("garbage bearer with valid cookie = %v, want ErrUnauthorized", err)
	}

	// No credentials at all.
	r = httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	if _, err := iss.AuthenticateRequest(r); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("no credentials = %v, want ErrUnauthorized", err)
	}

	// Deactivation invalidates outstanding tokens.
	users.user.Active = false
	r = httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+s.Token)
	if _, err := iss.AuthenticateRequest(r); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("deactivated account = %v, want ErrUnauthorized", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer lower-case-scheme")
	if tok, ok := TokenFromRequest(r); !ok || tok != "lower-case-scheme" {
		t.Fatalf("lowercase scheme: got %q, %v", tok, ok)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, ok := TokenFromRequest(r); ok {
		t.Fatal("non-bearer scheme must not yield a token")
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "   "})
	if _, ok := TokenFromRequest(r); ok {
		t.Fatal("blank cookie must not yield a token")
	}
}

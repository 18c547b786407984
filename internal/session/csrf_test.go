package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestCSRFMintAttachVerify(t *testing.T) {
	guard := NewCSRFGuard(false)

	token, err := guard.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	other, err := guard.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if token == other {
		t.Fatal("two minted tokens must differ")
	}

	rec := httptest.NewRecorder()
	guard.Attach(rec, token)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != CSRFCookieName || c.Value != token {
		t.Fatalf("unexpected cookie %q=%q", c.Name, c.Value)
	}
	if c.HttpOnly {
		t.Fatal("csrf cookie must be readable by the page")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("SameSite = %v, want Lax", c.SameSite)
	}
	if c.MaxAge != 3600 {
		t.Fatalf("MaxAge = %d, want 3600", c.MaxAge)
	}

	r := httptest.NewRequest(http.MethodPost, "/v1/auth/password", nil)
	r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	if err := guard.Verify(r, token); err != nil {
		t.Fatalf("Verify matching token: %v", err)
	}
	if err := guard.Verify(r, other); !errors.Is(err, ErrCSRFMismatch) {
		t.Fatalf("Verify mismatched token = %v, want ErrCSRFMismatch", err)
	}
}

func TestVerifyCSRFValues(t *testing.T) {
	cases := []struct {
		name      string
		cookie    string
		submitted string
		ok        bool
	}{
		{"equal", "abc123", "abc123", true},
		{"mismatch", "abc123", "abc124", false},
		{"length differs", "abc123", "abc1234", false},
		{"missing submitted", "abc123", "", false},
		{"missing cookie", "", "abc123", false},
		{"both missing", "", "", false},
		{"whitespace only", "   ", "   ", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyCSRFValues(tc.cookie, tc.submitted)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrCSRFMismatch) {
				t.Fatalf("got %v, want ErrCSRFMismatch", err)
			}
		})
	}
}

func TestVerifyRequiresCookie(t *testing.T) {
	guard := NewCSRFGuard(false)
	r := httptest.NewRequest(http.MethodPost, "/v1/auth/password", nil)
	if err := guard.Verify(r, "whatever"); !errors.Is(err, ErrCSRFMismatch) {
		t.Fatalf("Verify without cookie = %v, want ErrCSRFMismatch", err)
	}
}

func TestSubmittedCSRF(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set(CSRFHeaderName, "from-header")
	if got := SubmittedCSRF(r); got != "from-header" {
		t.Fatalf("header token = %q", got)
	}

	form := url.Values{"csrf": {"from-form"}}
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if got := SubmittedCSRF(r); got != "from-form" {
		t.Fatalf("form token = %q", got)
	}

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	if got := SubmittedCSRF(r); got != "" {
		t.Fatalf("empty request token = %q", got)
	}
}

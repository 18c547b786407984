package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultResendBaseURL = "https://api.resend.com"

// ResendClient sends transactional reset emails through the Resend HTTP
// API. Each send carries an idempotency key so a retried request cannot
// deliver twice.
type ResendClient struct {
	apiKey       string
	baseURL      string
	from         string
	resetURLBase string
	httpClient   *http.Client
}

// ResendOption configures a ResendClient.
type ResendOption func(*ResendClient)

// WithBaseURL overrides the API endpoint (tests point it at a local server).
func WithBaseURL(u string) ResendOption {
	return func(c *ResendClient) {
		if v := strings.TrimSpace(u); v != "" {
			c.baseURL = strings.TrimRight(v, "/")
		}
	}
}

// WithResetURLBase sets the page the emailed link lands on.
func WithResetURLBase(u string) ResendOption {
	return func(c *ResendClient) {
		if v := strings.TrimSpace(u); v != "" {
			c.resetURLBase = v
		}
	}
}

// WithHTTPClient overrides the underlying client.
func WithHTTPClient(hc *http.Client) ResendOption {
	return func(c *ResendClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewResendClient constructs a client. from is the sender shown to the
// recipient, e.g. "Authgate <no-reply@example.com>".
func NewResendClient(apiKey, from string, opts ...ResendOption) *ResendClient {
	c := &ResendClient{
		apiKey:       apiKey,
		baseURL:      defaultResendBaseURL,
		from:         from,
		resetURLBase: "/reset",
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendPasswordReset emails the reset link carrying the raw secret.
func (c *ResendClient) SendPasswordReset(ctx context.Context, email, rawSecret, displayName string) error {
	if displayName == "" {
		displayName = "there"
	}
	link := c.resetURLBase + "?token=" + url.QueryEscape(rawSecret)
	payload := resendEmail{
		From:    c.from,
		To:      []string{email},
		Subject: "Reset your password",
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>We received a request to reset your password. "+
				"Follow the link below to choose a new one. The link expires in one hour.</p>"+
				"<p><a href=%q>Reset password</a></p>"+
				"<p>If you did not request this, you can safely ignore this email.</p>",
			displayName, link),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: resend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

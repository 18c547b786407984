// Package resetflow implements the password-reset lifecycle: one-time
// secrets are issued against a stored hash, redeemed at most once, and
// rotate the account password atomically with their consumption.
package resetflow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"authgate.org/internal/audit"
	"authgate.org/internal/auth"
	"authgate.org/internal/notify"
	"authgate.org/internal/obs"
)

// Rejection reasons surfaced to the user completing the flow. They are
// deliberately more granular than session-token failures: mid-flow
// feedback is worth the small information leak.
var (
	ErrTokenExpired = errors.New("resetflow: token expired")
	ErrTokenUsed    = errors.New("resetflow: token already used")
	ErrTokenInvalid = errors.New("resetflow: token invalid")
)

const secretBytes = 32

// Manager drives both halves of the flow: RequestReset and Redeem.
type Manager struct {
	store    auth.Store
	notifier notify.Notifier
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenTTL sets the reset-token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the time source (expiry tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager. A nil notifier falls back to a no-op.
func NewManager(store auth.Store, notifier notify.Notifier, opts ...Option) *Manager {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	m := &Manager{
		store:    store,
		notifier: notifier,
		ttl:      1 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestReset issues a one-time secret for the account behind email.
// The outcome is identical whether or not the address matches a user:
// a nil return either way, so responses cannot be used for enumeration.
// Only store outages propagate.
func (m *Manager) RequestReset(ctx context.Context, email string) error {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	user, err := m.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil
		}
		return err
	}

	secret, err := newSecret()
	if err != nil {
		return err
	}
	now := m.now().UTC()
	tok := &auth.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: hashSecret(secret),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.ResetTokens(ctx).Create(ctx, tok); err != nil {
		return err
	}

	_ = audit.LogEvent(ctx, "auth.reset.requested", map[string]any{"user_id": user.ID})

	// Delivery must not block or fail the response. The raw secret lives
	// only in this call chain.
	go func(ctx context.Context, email, secret, name string) {
		if err := m.notifier.SendPasswordReset(ctx, email, secret, name); err != nil {
			_ = audit.LogEvent(ctx, "auth.reset.delivery_failed", map[string]any{"error": err.Error()})
		}
	}(context.WithoutCancel(ctx), user.Email, secret, user.FullName)

	return nil
}

// Redeem consumes a reset secret and rotates the password. Consumption and
// rotation commit together; a spent, expired or unknown secret yields the
// matching rejection and leaves the password untouched.
func (m *Manager) Redeem(ctx context.Context, rawSecret, newPassword string) error {
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" {
		obs.ObserveResetRedemption("invalid")
		return ErrTokenInvalid
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := m.now().UTC()
	tokenHash := hashSecret(rawSecret)
	userID, err := m.store.RedeemResetToken(ctx, tokenHash, newHash, now)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			reason := m.classifyRejection(ctx, tokenHash, now)
			obs.ObserveResetRedemption(reasonLabel(reason))
			return reason
		}
		return err
	}

	obs.ObserveResetRedemption("success")
	_ = audit.LogEvent(ctx, "auth.reset.consumed", map[string]any{"user_id": userID})
	return nil
}

// classifyRejection distinguishes expired / used / unknown after the
// atomic consume found no eligible row. The consume itself remains the
// only gate: this read is purely for user-facing copy.
func (m *Manager) classifyRejection(ctx context.Context, tokenHash string, now time.Time) error {
	tok, err := m.store.ResetTokens(ctx).FindByHash(ctx, tokenHash)
	if err != nil {
		return ErrTokenInvalid
	}
	switch {
	case tok.Consumed():
		return ErrTokenUsed
	case tok.Expired(now):
		return ErrTokenExpired
	default:
		// Row was eligible moments ago: a concurrent redemption won.
		return ErrTokenUsed
	}
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenUsed):
		return "used"
	default:
		return "invalid"
	}
}

// newSecret returns a high-entropy URL-safe secret. The raw value is
// handed to the notifier exactly once and never stored.
func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashSecret is the one-way mapping from raw secret to the stored lookup
// key. Issuer and redeemer must agree on it byte-for-byte.
func hashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

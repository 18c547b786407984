package auth

import (
	"strings"
	"time"
)

// User represents a registered account. Email is the login key and is
// stored case-normalized; uniqueness is enforced at the store level.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Active       bool
	Admin        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PasswordResetToken is the persisted half of a reset secret. Only the
// SHA-256 hex digest of the secret is stored; the raw value is handed to
// the notifier once and never persisted or logged.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Consumed reports whether the token has already been redeemed.
func (t *PasswordResetToken) Consumed() bool {
	return t != nil && t.UsedAt != nil
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return t == nil || !t.ExpiresAt.After(now)
}

// NormalizeEmail lower-cases and trims an email so the same address always
// maps to the same row regardless of how the client typed it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

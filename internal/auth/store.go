package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// RedeemResetToken spans both sub-stores because token consumption and the
// password rotation must commit or roll back together.
type Store interface {
	Users(ctx context.Context) UserStore
	ResetTokens(ctx context.Context) ResetTokenStore

	// RedeemResetToken atomically marks the matching unconsumed, unexpired
	// token as used and replaces the owner's password hash. Returns the
	// owner's user ID, or ErrNotFound when no token satisfies the
	// precondition (unknown hash, already used, or expired).
	RedeemResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error)
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// ResetTokenStore manages password-reset token rows.
type ResetTokenStore interface {
	Create(ctx context.Context, tok *PasswordResetToken) error
	// FindByHash returns the row for a secret hash regardless of state,
	// so rejection reasons can be classified after a failed redemption.
	FindByHash(ctx context.Context, tokenHash string) (*PasswordResetToken, error)
}

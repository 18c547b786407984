package auth

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 256
)

// Service verifies credentials and manages user records. Failures that
// would let a caller distinguish "no such account" from "wrong password"
// or "deactivated account" are collapsed into ErrInvalidCredentials.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Authenticate verifies email+password. Unknown email, wrong password and
// an inactive account all yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Resolve loads the current record behind a token subject. Inactive and
// missing accounts fail closed so deactivation takes effect immediately.
func (s *Service) Resolve(ctx context.Context, subject string) (*User, error) {
	user, err := s.store.Users(ctx).FindByEmail(ctx, NormalizeEmail(subject))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// Register creates a new active, non-admin account.
func (s *Service) Register(ctx context.Context, email, fullName, password string) (*User, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile changes display name and/or email. An email already taken
// by another account surfaces as ErrAlreadyExists.
func (s *Service) UpdateProfile(ctx context.Context, userID, email, fullName string) (*User, error) {
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if email = NormalizeEmail(email); email != "" && email != user.Email {
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if fullName = strings.TrimSpace(fullName); fullName != "" {
		user.FullName = fullName
	}
	if err := users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword rotates the hash after re-verifying the current password.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return users.UpdatePassword(ctx, user.ID, hash)
}

// SetPassword overwrites the hash without verifying the old one. Reserved
// for flows that have already proven ownership (reset-token redemption).
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// ListUsers returns every account ordered by creation time.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users(ctx).List(ctx)
}

func validateEmail(email string) error {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return ErrInvalidInput
	}
	return nil
}

// ValidatePassword enforces the length policy shared by registration,
// password change and reset redemption.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return ErrInvalidInput
	}
	return nil
}

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	svc := NewService(store, WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	return svc, store
}

func TestRegisterThenAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "  Alice@Example.COM ", "Alice Liddell", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "alice@example.com", user.Email, "email must be normalized")
	require.True(t, user.Active)
	require.False(t, user.Admin)
	require.NotEqual(t, "s3cret-pass", user.PasswordHash)

	got, err := svc.Authenticate(ctx, "ALICE@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestAuthenticateFailuresAreUniform(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "bob@example.com", "Bob", "s3cret-pass")
	require.NoError(t, err)

	// Unknown account, wrong password and a deactivated account must be
	// indistinguishable to the caller.
	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "bob@example.com", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	bob, err := store.Users(ctx).FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	bob.Active = false
	require.NoError(t, store.Users(ctx).Update(ctx, bob))

	_, err = svc.Authenticate(ctx, "bob@example.com", "s3cret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "carol@example.com", "Carol", "s3cret-pass")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Carol@Example.com", "Imposter", "other-pass1")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"missing at", "not-an-email", "s3cret-pass"},
		{"empty local part", "@example.com", "s3cret-pass"},
		{"trailing at", "dave@", "s3cret-pass"},
		{"short password", "dave@example.com", "short"},
		{"overlong password", "dave@example.com", string(make([]byte, 300))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.email, "Dave", tc.password)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestResolveFailsClosed(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "erin@example.com", "Erin", "s3cret-pass")
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, "erin@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = svc.Resolve(ctx, "ghost@example.com")
	require.ErrorIs(t, err, ErrInvalidToken)

	user.Active = false
	require.NoError(t, store.Users(ctx).Update(ctx, user))
	_, err = svc.Resolve(ctx, "erin@example.com")
	require.ErrorIs(t, err, ErrInvalidToken, "deactivation must take effect immediately")
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "frank@example.com", "Frank", "old-password")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong-password", "new-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, user.ID, "old-password", "short")
	require.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "old-password", "new-password"))

	_, err = svc.Authenticate(ctx, "frank@example.com", "old-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "frank@example.com", "new-password")
	require.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "grace@example.com", "Grace", "s3cret-pass")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "heidi@example.com", "Heidi", "s3cret-pass")
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, user.ID, "Grace@NEW.example.com", "Grace Hopper")
	require.NoError(t, err)
	require.Equal(t, "grace@new.example.com", updated.Email)
	require.Equal(t, "Grace Hopper", updated.FullName)

	// Blank fields keep current values.
	kept, err := svc.UpdateProfile(ctx, user.ID, "", "")
	require.NoError(t, err)
	require.Equal(t, "grace@new.example.com", kept.Email)
	require.Equal(t, "Grace Hopper", kept.FullName)

	_, err = svc.UpdateProfile(ctx, user.ID, "heidi@example.com", "")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

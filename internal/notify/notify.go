// Package notify delivers password-reset secrets to account owners.
// Delivery is a collaborator of the reset flow: callers fire it off the
// request path and treat failures as log-worthy, never fatal.
package notify

import "context"

// Notifier hands a raw reset secret to the account owner. Implementations
// must not persist or log the secret.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, rawSecret, displayName string) error
}

// Noop discards notifications. Used in tests and when no delivery API key
// is configured.
type Noop struct{}

func (Noop) SendPasswordReset(context.Context, string, string, string) error { return nil }

package service

import "context"

// Notifier delivers account emails carrying single-use tokens.
type Notifier interface {
	// SendResetEmail sends a password reset link embedding rawToken.
	SendResetEmail(ctx context.Context, to, rawToken, name string) error

	// SendVerificationEmail sends an email verification link embedding rawToken.
	SendVerificationEmail(ctx context.Context, to, rawToken, name string) error

	// Close releases resources
	Close() error
}

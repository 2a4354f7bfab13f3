package usecase

import (
	"context"

	"ideaboard/internal/domain/entity"
)

// PasswordResetFlow issues, verifies and consumes single-use password reset tokens.
type PasswordResetFlow interface {
	// Request starts a reset for email. Unknown addresses and requests inside the
	// cooldown are silent no-ops, so callers always answer the same way.
	Request(ctx context.Context, email string) error

	// Verify resolves a raw reset token. With increment it counts the attempt and
	// closes the reset once the attempt limit is exceeded.
	Verify(ctx context.Context, rawToken string, increment bool) (*entity.Principal, error)

	// Consume sets a new password using a reset token and ends every session of the principal.
	Consume(ctx context.Context, rawToken, newPassword string) error
}

// EmailVerificationUsecase confirms that a principal controls its email address.
type EmailVerificationUsecase interface {
	// Issue stores a fresh verification token for principal and emails it.
	Issue(ctx context.Context, principal *entity.Principal) error

	// Verify marks the owner of rawToken as verified.
	Verify(ctx context.Context, rawToken string) (*entity.Principal, error)

	// Resend issues a new token for email. Unknown or already verified addresses are silent no-ops.
	Resend(ctx context.Context, email string) error
}

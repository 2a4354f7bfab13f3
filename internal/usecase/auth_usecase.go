// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"ideaboard/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// RegisterInput defines the data required to open a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput defines the data required for a password login.
type LoginInput struct {
	Email    string
	Password string
}

// ChangePasswordInput defines the data required to change the password of a signed-in principal.
type ChangePasswordInput struct {
	PrincipalID     uuid.UUID
	CurrentPassword string
	NewPassword     string
}

// --- Output DTOs ---

// TokenPair is an access token together with the refresh token that can renew it.
// RefreshToken is the raw value and is returned exactly once.
type TokenPair struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// AuthOutput is returned by every operation that signs a principal in.
type AuthOutput struct {
	Tokens    TokenPair
	Principal *entity.Principal
}

// AuthUsecase is the public contract of the credential and session lifecycle.
// This is the contract that the delivery layer (e.g., API handlers) will depend on.
type AuthUsecase interface {
	// Register creates an account with role user and signs it in.
	Register(ctx context.Context, input *RegisterInput) (*AuthOutput, error)

	// Login checks a password, enforcing the per-account lockout.
	Login(ctx context.Context, input *LoginInput) (*AuthOutput, error)

	// Refresh exchanges a refresh token for a new pair. Every failure means the
	// caller must discard both tokens.
	Refresh(ctx context.Context, refreshToken string) (*AuthOutput, error)

	// Logout revokes the presented refresh token. Unknown or already revoked tokens are not an error.
	Logout(ctx context.Context, refreshToken string) error

	// LogoutAll revokes every refresh token of a principal.
	LogoutAll(ctx context.Context, principalID uuid.UUID) (int64, error)

	// ChangePassword replaces the password and ends every other session.
	ChangePassword(ctx context.Context, input *ChangePasswordInput) error

	// Authenticate verifies an access token statelessly.
	Authenticate(ctx context.Context, accessToken string) (*entity.AccessTokenClaims, error)

	// GetPrincipal loads the account behind an access token subject.
	GetPrincipal(ctx context.Context, principalID uuid.UUID) (*entity.Principal, error)

	// UnlockPrincipal clears the failed login counter of an account.
	UnlockPrincipal(ctx context.Context, principalID uuid.UUID) error
}

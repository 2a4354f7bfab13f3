package handler

import (
	"time"

	"ideaboard/internal/domain/entity"
	"ideaboard/internal/usecase"

	"github.com/google/uuid"
)

const tokenTypeBearer = "Bearer"

// PrincipalResponse is the public view of an account.
type PrincipalResponse struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            string     `json:"role"`
	EmailVerified   bool       `json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TokenResponse carries a freshly issued token pair.
type TokenResponse struct {
	AccessToken           string             `json:"access_token"`
	TokenType             string             `json:"token_type"`
	ExpiresIn             int64              `json:"expires_in"`
	AccessTokenExpiresAt  time.Time          `json:"access_token_expires_at"`
	RefreshToken          string             `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time          `json:"refresh_token_expires_at"`
	Principal             *PrincipalResponse `json:"principal,omitempty"`
}

func toPrincipalResponse(p *entity.Principal) *PrincipalResponse {
	if p == nil {
		return nil
	}

	return &PrincipalResponse{
		ID:              p.ID,
		Email:           p.Email,
		Name:            p.Name,
		Role:            p.Role.String(),
		EmailVerified:   p.EmailVerified,
		EmailVerifiedAt: p.EmailVerifiedAt,
		LastLoginAt:     p.LastLoginAt,
		CreatedAt:       p.CreatedAt,
	}
}

func toTokenResponse(out *usecase.AuthOutput, now time.Time) *TokenResponse {
	expiresIn := int64(out.Tokens.AccessTokenExpiresAt.Sub(now).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	return &TokenResponse{
		AccessToken:           out.Tokens.AccessToken,
		TokenType:             tokenTypeBearer,
		ExpiresIn:             expiresIn,
		AccessTokenExpiresAt:  out.Tokens.AccessTokenExpiresAt,
		RefreshToken:          out.Tokens.RefreshToken,
		RefreshTokenExpiresAt: out.Tokens.RefreshTokenExpiresAt,
		Principal:             toPrincipalResponse(out.Principal),
	}
}

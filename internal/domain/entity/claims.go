package entity

import (
	"time"

	"github.com/google/uuid"
)

// AccessTokenClaims is the stateless payload of an access token.
type AccessTokenClaims struct {
	Subject   uuid.UUID
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string // jti
}

package service

import (
	"time"

	"ideaboard/internal/domain/entity"

	"github.com/google/uuid"
)

// TokenIssuer creates and verifies signed, stateless access tokens.
type TokenIssuer interface {
	// Issue signs a token for subject with expiry now+ttl and a fresh jti.
	Issue(subject uuid.UUID, role entity.Role, ttl time.Duration) (string, *entity.AccessTokenClaims, error)

	// Verify checks signature, algorithm and expiry. It never consults a store.
	Verify(token string) (*entity.AccessTokenClaims, error)
}

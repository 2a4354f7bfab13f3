package repository

import (
	"context"
	"time"

	"ideaboard/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for refresh token persistence.
var (
	// ErrRefreshTokenNotFound is returned when a refresh token is not found.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRefreshTokenRevoked is returned when a compare-and-revoke finds the record already revoked.
	ErrRefreshTokenRevoked = errors.New("refresh token already revoked")
)

// RefreshTokenRepository stores refresh token records keyed by the digest of the raw token.
type RefreshTokenRepository interface {
	// Create persists a new record.
	Create(ctx context.Context, record *entity.RefreshTokenRecord) error

	// FindByDigest retrieves a record by the digest of its raw token.
	FindByDigest(ctx context.Context, digest string) (*entity.RefreshTokenRecord, error)

	// RevokeIfActive flips revoked from false to true in a single conditional write.
	// It reports false when the record was already revoked or does not exist.
	RevokeIfActive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// RevokeAndInsert revokes oldID and inserts next as one atomic unit.
	// It returns ErrRefreshTokenRevoked and inserts nothing when oldID was not active.
	RevokeAndInsert(ctx context.Context, oldID uuid.UUID, next *entity.RefreshTokenRecord, at time.Time) error

	// RevokeAllForPrincipal revokes every active record of a principal and returns how many changed.
	RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID, at time.Time) (int64, error)

	// Delete removes a record.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteExpired removes records that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

package usecase

import (
	"context"
	"time"

	"ideaboard/internal/domain/entity"

	"github.com/google/uuid"
)

// IssuedRefreshToken carries a raw refresh token next to its stored record.
type IssuedRefreshToken struct {
	Raw    string
	Record *entity.RefreshTokenRecord
}

// RefreshTokenStore issues, rotates and revokes long-lived refresh tokens.
// Only digests are stored; raw values leave the store once, at issuance or rotation.
type RefreshTokenStore interface {
	// Issue stores a new record for principalID expiring after ttl.
	Issue(ctx context.Context, principalID uuid.UUID, ttl time.Duration) (*IssuedRefreshToken, error)

	// VerifyAndConsume checks a raw token without mutating its record. It fails with
	// ErrTokenNotFound, ErrTokenRevoked or ErrTokenExpired, purging the record on expiry.
	VerifyAndConsume(ctx context.Context, raw string) (*entity.RefreshTokenRecord, error)

	// Rotate consumes raw and issues its replacement. Concurrent rotations of the
	// same token succeed at most once; losers get ErrTokenRevoked.
	Rotate(ctx context.Context, raw string, ttl time.Duration) (*IssuedRefreshToken, error)

	// Revoke marks a record revoked. It is idempotent.
	Revoke(ctx context.Context, recordID uuid.UUID) error

	// RevokeAllFor revokes every active record of a principal.
	RevokeAllFor(ctx context.Context, principalID uuid.UUID) (int64, error)

	// PurgeExpired deletes records past their expiry.
	PurgeExpired(ctx context.Context) (int64, error)
}

// LoginThrottle tracks consecutive failed logins and enforces the account lockout.
type LoginThrottle interface {
	// IsLocked reports whether the principal is inside an active lockout window.
	IsLocked(principal *entity.Principal) bool

	// Check returns ErrAccountLocked while locked. When the window has lapsed it
	// resets the stored counter before returning nil.
	Check(ctx context.Context, principal *entity.Principal) error

	// RecordFailure increments the counter and reports whether the principal is now locked.
	RecordFailure(ctx context.Context, principal *entity.Principal) (bool, error)

	// ReserveAttempt returns ErrAccountLocked while locked. Otherwise it counts the
	// attempt as a failure up front, atomically with the lock check.
	ReserveAttempt(ctx context.Context, principal *entity.Principal) error

	// ConfirmFailure settles a reserved attempt whose password was wrong and
	// reports whether the principal is now locked.
	ConfirmFailure(ctx context.Context, principal *entity.Principal) bool

	// RecordSuccess clears the counter and stamps the last login time.
	RecordSuccess(ctx context.Context, principal *entity.Principal) error

	// Unlock clears the counter of the given principal.
	Unlock(ctx context.Context, principalID uuid.UUID) error
}

package entity

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenRecord is the server-side half of a long-lived session.
// Only the digest of the raw token is kept; the raw value is handed to the client once.
type RefreshTokenRecord struct {
	ID          uuid.UUID  // Unique ID for this record.
	PrincipalID uuid.UUID  // Owner of the session.
	TokenDigest string     // SHA-256 digest of the raw token, unique and indexed.
	RotationID  uuid.UUID  // Unique per issuance; a rotation always yields a new one.
	ExpiresAt   time.Time  // Absolute UTC expiry.
	Revoked     bool       // Set on rotation or logout, never cleared.
	RevokedAt   *time.Time // When the record was revoked.
	CreatedAt   time.Time
}

// IsExpired reports whether the record is past its expiry at now.
func (r *RefreshTokenRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

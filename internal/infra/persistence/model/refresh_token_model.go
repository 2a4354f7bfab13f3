package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshTokenModel mirrors the 'refresh_tokens' table, keyed for lookup by the token digest.
type RefreshTokenModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	PrincipalID uuid.UUID `gorm:"type:uuid;not null;index:idx_refresh_tokens_principal_id"`
	TokenDigest string    `gorm:"type:char(64);not null;uniqueIndex:idx_refresh_tokens_token_digest"`
	RotationID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_refresh_tokens_rotation_id"`
	ExpiresAt   time.Time `gorm:"not null"`
	Revoked     bool      `gorm:"not null;default:false"`
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// TableName explicitly sets the table name for GORM.
func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}

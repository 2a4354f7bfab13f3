package model

import (
	"time"

	"github.com/google/uuid"
)

// PrincipalModel mirrors the 'principals' table. Token digest columns are NULL when no token is live.
type PrincipalModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	Email           string    `gorm:"type:varchar(320);not null;uniqueIndex:idx_principals_email"`
	Name            string    `gorm:"type:varchar(255);not null"`
	PasswordHash    string    `gorm:"type:varchar(255);not null"`
	Role            string    `gorm:"type:varchar(16);not null"`
	EmailVerified   bool      `gorm:"not null;default:false"`
	EmailVerifiedAt *time.Time

	FailedLoginCount  int `gorm:"not null;default:0"`
	LastFailedLoginAt *time.Time

	ResetTokenHash      *string `gorm:"type:char(64);uniqueIndex:idx_principals_reset_token_hash"`
	ResetTokenExpiresAt *time.Time
	ResetAttempts       int `gorm:"not null;default:0"`

	VerificationTokenHash      *string `gorm:"type:char(64);uniqueIndex:idx_principals_verification_token_hash"`
	VerificationTokenExpiresAt *time.Time

	PasswordChangedAt *time.Time
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName explicitly sets the table name for GORM.
func (PrincipalModel) TableName() string {
	return "principals"
}

// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Principal is an account that can authenticate against the system.
// Reset and verification state is embedded: at most one live token of each kind exists per principal.
type Principal struct {
	ID              uuid.UUID  // Stable identifier, used as the access token subject.
	Email           string     // Login identifier, always stored lower-cased.
	Name            string     // Display name used in outgoing emails.
	PasswordHash    string     // Encoded argon2id hash of the password.
	Role            Role       // Authorization level.
	EmailVerified   bool       // Whether the email address was confirmed.
	EmailVerifiedAt *time.Time // When the email address was confirmed.

	FailedLoginCount  int        // Consecutive failed logins since the last success.
	LastFailedLoginAt *time.Time // Time of the most recent failed login.

	ResetTokenHash      string     // Digest of the active reset token, empty when none.
	ResetTokenExpiresAt *time.Time // Absolute expiry of the active reset token.
	ResetAttempts       int        // Verification attempts made against the active reset token.

	VerificationTokenHash      string     // Digest of the active email verification token, empty when none.
	VerificationTokenExpiresAt *time.Time // Absolute expiry of the active verification token.

	PasswordChangedAt *time.Time // Last time the password was set through reset or change.
	LastLoginAt       *time.Time // Last successful password login.
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasActiveReset reports whether a reset token is currently stored.
func (p *Principal) HasActiveReset() bool {
	return p.ResetTokenHash != "" && p.ResetTokenExpiresAt != nil
}

// ClearReset drops the reset token, its expiry and the attempt counter.
func (p *Principal) ClearReset() {
	p.ResetTokenHash = ""
	p.ResetTokenExpiresAt = nil
	p.ResetAttempts = 0
}

// ClearVerification drops the pending email verification token.
func (p *Principal) ClearVerification() {
	p.VerificationTokenHash = ""
	p.VerificationTokenExpiresAt = nil
}

// ClearFailedLogins resets the lockout counter.
func (p *Principal) ClearFailedLogins() {
	p.FailedLoginCount = 0
	p.LastFailedLoginAt = nil
}

// Package service defines interfaces for core, stateless domain logic.
// These services encapsulate business rules that don't naturally fit within a single entity.
package service

import "context"

// Hasher covers password hashing and the fast digest used for high-entropy tokens.
type Hasher interface {
	// HashPassword derives a memory-hard hash. It blocks on a bounded worker pool,
	// so ctx cancellation abandons the wait for a worker slot.
	HashPassword(ctx context.Context, plain string) (string, error)

	// VerifyPassword checks plain against an encoded hash using the scheme's constant-time comparator.
	VerifyPassword(ctx context.Context, plain, encoded string) (bool, error)

	// HashOpaque returns the hex SHA-256 digest of a random token. Never used for passwords.
	HashOpaque(secret string) string

	// ConstantTimeEquals compares two secrets without leaking timing information.
	ConstantTimeEquals(a, b string) bool
}

// TokenGenerator produces URL-safe random secrets.
type TokenGenerator interface {
	// NewOpaqueToken returns a base64url string carrying at least 256 bits of entropy.
	NewOpaqueToken() (string, error)
}

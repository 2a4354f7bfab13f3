package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"ideaboard/internal/domain/service"
	"ideaboard/internal/errors"
)

// opaqueTokenBytes is the entropy of refresh, reset and verification tokens before encoding.
const opaqueTokenBytes = 32

// HashOpaque returns the hex SHA-256 digest of a high-entropy secret.
func HashOpaque(secret string) string {
	sum := sha256.Sum256([]byte(secret))

	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two secrets in time independent of their content.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type randomTokenGenerator struct{}

// NewTokenGenerator returns a crypto/rand backed TokenGenerator.
func NewTokenGenerator() service.TokenGenerator {
	return randomTokenGenerator{}
}

func (randomTokenGenerator) NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "read random bytes")
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

package impl

import (
	"strings"
	"unicode"

	domainerrors "ideaboard/internal/domain/errors"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	passwordSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

var commonPasswords = map[string]struct{}{
	"password":    {},
	"12345678":    {},
	"qwerty":      {},
	"abc123":      {},
	"password123": {},
}

// ValidatePasswordStrength returns every rule the password violates, in a fixed order.
// An empty result means the password is acceptable.
func ValidatePasswordStrength(password string) []string {
	var violations []string

	length := len([]rune(password))
	if length < minPasswordLength {
		violations = append(violations, "Password must be at least 8 characters long")
	}
	if length > maxPasswordLength {
		violations = append(violations, "Password must not exceed 128 characters")
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}

	if !hasUpper {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "Password must contain at least one number")
	}
	if !hasSymbol {
		violations = append(violations, "Password must contain at least one special character")
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		violations = append(violations, "Password is too common")
	}

	return violations
}

// checkPasswordStrength wraps the violations in a WeakPasswordError.
func checkPasswordStrength(password string) error {
	if violations := ValidatePasswordStrength(password); len(violations) > 0 {
		return domainerrors.NewWeakPasswordError(violations)
	}

	return nil
}

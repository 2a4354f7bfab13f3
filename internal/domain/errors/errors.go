// Package errors is the error taxonomy of the authentication domain. Every
// value here knows how it is rendered at the HTTP boundary.
package errors

import (
	"net/http"
	"strings"

	"ideaboard/internal/errors"
)

// AppError is an error the delivery layer can render without guessing.
type AppError interface {
	error
	HTTPCode() int
	// ErrorCode is the stable machine-readable code clients switch on.
	ErrorCode() string
	Message() string
	// Details is optional and dropped by the renderer for 5xx, 401 and 403.
	Details() string
}

// BaseError is the plain AppError used for every fixed outcome.
type BaseError struct {
	httpCode  int
	errorCode string
	message   string
	details   string
}

func NewBaseError(httpCode int, errorCode, message, details string) *BaseError {
	return &BaseError{
		httpCode:  httpCode,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

func newFixed(httpCode int, errorCode, message string) *BaseError {
	return NewBaseError(httpCode, errorCode, message, "")
}

func (e *BaseError) Error() string {
	if e.details == "" {
		return e.message
	}

	return e.message + ": " + e.details
}

// Is matches any AppError carrying the same error code, so copies made by
// WithDetails still satisfy errors.Is against the predefined values.
func (e *BaseError) Is(target error) bool {
	appErr, ok := target.(AppError)

	return ok && appErr.ErrorCode() == e.errorCode
}

// WrapMessage annotates the error for logs while keeping it matchable.
func (e *BaseError) WrapMessage(message string) error {
	return errors.Wrap(e, message)
}

func (e *BaseError) HTTPCode() int     { return e.httpCode }
func (e *BaseError) ErrorCode() string { return e.errorCode }
func (e *BaseError) Message() string   { return e.message }
func (e *BaseError) Details() string   { return e.details }

// WithDetails returns a copy that carries details; the receiver is never mutated.
func (e *BaseError) WithDetails(details string) *BaseError {
	clone := *e
	clone.details = details

	return &clone
}

// Login and lockout. Unknown email and wrong password share ErrInvalidCredentials.
var (
	ErrInvalidCredentials = newFixed(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Incorrect email or password")
	ErrAccountLocked      = newFixed(http.StatusLocked, "ACCOUNT_LOCKED", "Account temporarily locked due to too many failed login attempts")
	ErrRateLimited        = newFixed(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again later")
)

// Access, refresh, reset and verification tokens.
var (
	ErrInvalidToken  = newFixed(http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
	ErrTokenExpired  = newFixed(http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
	ErrTokenRevoked  = newFixed(http.StatusUnauthorized, "TOKEN_REVOKED", "Token has been revoked")
	ErrTokenNotFound = newFixed(http.StatusUnauthorized, "TOKEN_NOT_FOUND", "Token not recognised")
)

// Account management.
var (
	ErrEmailTaken        = newFixed(http.StatusBadRequest, "EMAIL_TAKEN", "Email already registered")
	ErrSamePassword      = newFixed(http.StatusBadRequest, "SAME_PASSWORD", "New password must be different from the current password")
	ErrPrincipalNotFound = newFixed(http.StatusNotFound, "PRINCIPAL_NOT_FOUND", "Account not found")
	ErrValidationFailed  = newFixed(http.StatusBadRequest, "VALIDATION_FAILED", "Input validation failed")
)

// Boundary and fallback outcomes.
var (
	ErrUnauthorized  = newFixed(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	ErrForbidden     = newFixed(http.StatusForbidden, "FORBIDDEN", "Access denied")
	ErrNotFound      = newFixed(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrInternalError = newFixed(http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
)

// IsRefreshFailure reports whether err is one of the refresh-path token errors.
// Every one of them means the client must discard both tokens and log in again.
func IsRefreshFailure(err error) bool {
	return errors.IsAny(err, ErrTokenNotFound, ErrTokenRevoked, ErrTokenExpired, ErrInvalidToken)
}

// WeakPasswordError lists every password rule the candidate violated
type WeakPasswordError struct {
	Violations []string
}

// NewWeakPasswordError creates a WeakPasswordError from the violated rules
func NewWeakPasswordError(violations []string) AppError {
	return &WeakPasswordError{Violations: violations}
}

// Error implements the error interface
func (e *WeakPasswordError) Error() string {
	return "weak password: " + strings.Join(e.Violations, "; ")
}

// HTTPCode returns the HTTP status code
func (e *WeakPasswordError) HTTPCode() int {
	return http.StatusBadRequest
}

// ErrorCode returns the business error code
func (e *WeakPasswordError) ErrorCode() string {
	return "WEAK_PASSWORD"
}

// Message returns the user-friendly error message
func (e *WeakPasswordError) Message() string {
	return "Password does not meet the strength requirements"
}

// Details returns the violated rules joined by "; "
func (e *WeakPasswordError) Details() string {
	return strings.Join(e.Violations, "; ")
}

// StorageError represents a persistence failure, implementing the AppError interface.
// The cause is kept for logs and never rendered to clients.
type StorageError struct {
	err     error
	details string
}

// NewStorageError creates a storage-related error
func NewStorageError(err error, details string) AppError {
	return &StorageError{
		err:     err,
		details: details,
	}
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return errors.Wrap(e.err, "storage operation failed: "+e.details).Error()
}

// Unwrap exposes the underlying persistence error
func (e *StorageError) Unwrap() error {
	return e.err
}

// HTTPCode returns the HTTP status code
func (e *StorageError) HTTPCode() int {
	return http.StatusInternalServerError
}

// ErrorCode returns the business error code
func (e *StorageError) ErrorCode() string {
	return "STORAGE_ERROR"
}

// Message returns the user-friendly error message
func (e *StorageError) Message() string {
	return "Internal server error"
}

// Details is always empty so no storage detail leaks to clients
func (e *StorageError) Details() string {
	return ""
}

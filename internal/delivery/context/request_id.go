// Package context carries request-scoped values between the HTTP layer and the usecases.
package context

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// KeyRequestID is the key for storing request ID in context.
	KeyRequestID ContextKey = "request_id"

	// KeyLogger is the key for storing request-scoped logger in context.
	KeyLogger ContextKey = "logger"

	// KeyPrincipalID is the key for the authenticated principal id.
	KeyPrincipalID ContextKey = "principal_id"

	// HeaderXRequestID is the HTTP header name for request ID.
	HeaderXRequestID = "X-Request-Id"

	maxRequestIDLen = 64
)

// GetRequestID returns the request ID stored on the echo.Context, or an empty string.
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(string(KeyRequestID)).(string)

	return id
}

// SetRequestID sets the request ID in echo.Context.
func SetRequestID(c echo.Context, requestID string) {
	c.Set(string(KeyRequestID), requestID)
}

// SanitizeRequestID accepts a client supplied id only when it is short and printable ASCII
// without spaces, and otherwise returns a fresh UUID. The id ends up in every log line.
func SanitizeRequestID(candidate string) string {
	if candidate == "" || len(candidate) > maxRequestIDLen {
		return uuid.NewString()
	}
	for i := 0; i < len(candidate); i++ {
		if b := candidate[i]; b <= ' ' || b > '~' {
			return uuid.NewString()
		}
	}

	return candidate
}

// GetRequestIDFromContext extracts the request ID from standard context.Context.
// If not found, returns empty string.
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(KeyRequestID).(string); ok {
		return id
	}

	return ""
}

// WithRequestID returns a new context with the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, KeyRequestID, requestID)
}

// GetLoggerOrDefault extracts the request-scoped logger from context.Context.
// If not found, returns the provided fallback logger.
func GetLoggerOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(KeyLogger).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return fallback
}

// WithLogger returns a new context with the logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, KeyLogger, logger)
}

// WithPrincipal stores the authenticated principal id and tags the request logger with it.
func WithPrincipal(ctx context.Context, principalID uuid.UUID, fallback *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, KeyPrincipalID, principalID)
	if logger := GetLoggerOrDefault(ctx, fallback); logger != nil {
		ctx = WithLogger(ctx, logger.With(slog.String("principal_id", principalID.String())))
	}

	return ctx
}

// GetPrincipalIDFromContext returns the authenticated principal id, if any.
func GetPrincipalIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(KeyPrincipalID).(uuid.UUID)

	return id, ok
}

package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"ideaboard/internal/delivery/api/response"
	deliverycontext "ideaboard/internal/delivery/context"
	domainerrors "ideaboard/internal/domain/errors"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// ErrorMiddleware handles errors in the HTTP pipeline
type ErrorMiddleware struct {
	logger *slog.Logger
}

// NewErrorMiddleware creates a new error handling middleware
func NewErrorMiddleware(logger *slog.Logger) *ErrorMiddleware {
	return &ErrorMiddleware{
		logger: logger,
	}
}

// HandleHTTPError is echo's HTTPErrorHandler. Domain errors keep their code, echo's own
// errors (unknown route, body too large) get a code derived from the status, and anything
// else is logged and collapsed to INTERNAL_ERROR.
func (m *ErrorMiddleware) HandleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	logger := deliverycontext.GetLoggerOrDefault(c.Request().Context(), m.logger).With(
		slog.String("method", c.Request().Method),
		slog.String("path", c.Path()),
	)

	var renderErr error

	var appErr domainerrors.AppError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		if appErr.HTTPCode() >= http.StatusInternalServerError {
			logger.Error("Request failed", slog.Any("error", err))
		}
		renderErr = response.HandleAppError(c, err)

	case errors.As(err, &httpErr):
		message := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			message = msg
		}
		renderErr = response.Error(c, httpErr.Code, statusCode(httpErr.Code), message, nil)

	default:
		logger.Error("Unhandled error", slog.Any("error", err))
		renderErr = response.InternalServerError(c, domainerrors.ErrInternalError.ErrorCode(),
			"Internal server error, please try again later")
	}

	if renderErr != nil {
		logger.Error("Failed to render error response", slog.Any("error", renderErr))
	}
}

// statusCode turns a status into an error code, e.g. 413 -> REQUEST_ENTITY_TOO_LARGE.
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "HTTP_ERROR"
	}

	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text))
}

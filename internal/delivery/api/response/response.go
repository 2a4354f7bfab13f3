// Package response renders the JSON envelopes returned by the API.
package response

import (
	"net/http"

	"ideaboard/internal/delivery/api/validator"
	deliverycontext "ideaboard/internal/delivery/context"
	domainerrors "ideaboard/internal/domain/errors"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// SuccessResponse is the {data, meta} envelope.
type SuccessResponse struct {
	Data any       `json:"data"`
	Meta *MetaInfo `json:"meta"`
}

// ErrorResponse is the {error, meta} envelope.
type ErrorResponse struct {
	Error *ErrorInfo `json:"error"`
	Meta  *MetaInfo  `json:"meta"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Details carries field errors or violated password rules; see hidesDetails.
	Details any `json:"details,omitempty"`
}

type MetaInfo struct {
	RequestID string `json:"request_id"`
}

func meta(c echo.Context) *MetaInfo {
	return &MetaInfo{RequestID: deliverycontext.GetRequestID(c)}
}

// hidesDetails keeps server faults and auth failures from describing themselves.
func hidesDetails(statusCode int) bool {
	return statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusUnauthorized ||
		statusCode == http.StatusForbidden
}

func Success(c echo.Context, statusCode int, data any) error {
	return c.JSON(statusCode, SuccessResponse{Data: data, Meta: meta(c)})
}

// Credentials returns a successful response carrying tokens. Intermediaries must not cache it.
func Credentials(c echo.Context, statusCode int, data any) error {
	header := c.Response().Header()
	header.Set("Cache-Control", "no-store")
	header.Set("Pragma", "no-cache")

	return Success(c, statusCode, data)
}

// Message returns a successful response whose data is a single message
func Message(c echo.Context, statusCode int, message string) error {
	return Success(c, statusCode, map[string]string{"message": message})
}

func Error(c echo.Context, statusCode int, errorCode string, message string, details any) error {
	if hidesDetails(statusCode) {
		details = nil
	}

	return c.JSON(statusCode, ErrorResponse{
		Error: &ErrorInfo{Code: errorCode, Message: message, Details: details},
		Meta:  meta(c),
	})
}

// BindingError answers a body that could not be decoded at all.
func BindingError(c echo.Context, message string) error {
	return Error(c, http.StatusBadRequest, "INVALID_INPUT", message, nil)
}

func InternalServerError(c echo.Context, errorCode string, message string) error {
	return Error(c, http.StatusInternalServerError, errorCode, message, nil)
}

// HandleAppError renders domain and validation errors. Anything else is returned
// unchanged for the central error handler.
func HandleAppError(c echo.Context, err error) error {
	var vErr *validator.ValidationError
	if errors.As(err, &vErr) {
		return Error(c, http.StatusBadRequest, domainerrors.ErrValidationFailed.ErrorCode(),
			domainerrors.ErrValidationFailed.Message(), vErr.Fields)
	}

	var weak *domainerrors.WeakPasswordError
	if errors.As(err, &weak) {
		return Error(c, weak.HTTPCode(), weak.ErrorCode(), weak.Message(), weak.Violations)
	}

	var appErr domainerrors.AppError
	if errors.As(err, &appErr) {
		var details any
		if d := appErr.Details(); d != "" {
			details = d
		}

		return Error(c, appErr.HTTPCode(), appErr.ErrorCode(), appErr.Message(), details)
	}

	return errors.WithStack(err)
}

package handler

import (
	"log/slog"
	"net/http"

	"ideaboard/internal/delivery/api/middleware"
	"ideaboard/internal/delivery/api/response"
	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const forgotPasswordMessage = "If an account exists for that email, a reset link has been sent"

// PasswordHandlerParams holds dependencies for PasswordHandler, injected by Fx.
type PasswordHandlerParams struct {
	fx.In

	AuthUC    usecase.AuthUsecase
	ResetFlow usecase.PasswordResetFlow
	Logger    *slog.Logger
}

// PasswordHandler serves the password reset and change endpoints.
type PasswordHandler struct {
	authUC    usecase.AuthUsecase
	resetFlow usecase.PasswordResetFlow
	logger    *slog.Logger
}

// NewPasswordHandler is the constructor for PasswordHandler
func NewPasswordHandler(params PasswordHandlerParams) *PasswordHandler {
	return &PasswordHandler{
		authUC:    params.AuthUC,
		resetFlow: params.ResetFlow,
		logger:    params.Logger,
	}
}

// ForgotPasswordRequest represents the request body for starting a reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents the request body for consuming a reset token
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePasswordRequest represents the request body for an authenticated password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// ForgotPassword answers identically whether or not the email is known.
func (h *PasswordHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid forgot password input")
	}
	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	if err := h.resetFlow.Request(c.Request().Context(), req.Email); err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Message(c, http.StatusOK, forgotPasswordMessage)
}

// VerifyResetToken reports whether a reset token is usable without counting an attempt.
func (h *PasswordHandler) VerifyResetToken(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return response.HandleAppError(c, domainerrors.ErrInvalidToken)
	}

	if _, err := h.resetFlow.Verify(c.Request().Context(), token, false); err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, map[string]bool{"valid": true})
}

// ResetPassword sets a new password from a reset token
func (h *PasswordHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid reset password input")
	}
	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	if err := h.resetFlow.Consume(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Message(c, http.StatusOK, "Password has been reset")
}

// ChangePassword changes the caller's password and ends all of its sessions
func (h *PasswordHandler) ChangePassword(c echo.Context) error {
	principalID, ok := middleware.GetPrincipalID(c)
	if !ok {
		return response.HandleAppError(c, domainerrors.ErrUnauthorized)
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid change password input")
	}
	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	err := h.authUC.ChangePassword(c.Request().Context(), &usecase.ChangePasswordInput{
		PrincipalID:     principalID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Message(c, http.StatusOK, "Password has been changed")
}

package handler

import (
	"log/slog"
	"net/http"

	"ideaboard/internal/delivery/api/middleware"
	"ideaboard/internal/delivery/api/response"
	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const resendVerificationMessage = "If the address needs verification, a new link has been sent"

// AccountHandlerParams holds dependencies for AccountHandler, injected by Fx.
type AccountHandlerParams struct {
	fx.In

	AuthUC       usecase.AuthUsecase
	Verification usecase.EmailVerificationUsecase
	Logger       *slog.Logger
}

// AccountHandler serves profile, email verification and admin account endpoints.
type AccountHandler struct {
	authUC       usecase.AuthUsecase
	verification usecase.EmailVerificationUsecase
	logger       *slog.Logger
}

// NewAccountHandler is the constructor for AccountHandler
func NewAccountHandler(params AccountHandlerParams) *AccountHandler {
	return &AccountHandler{
		authUC:       params.AuthUC,
		verification: params.Verification,
		logger:       params.Logger,
	}
}

// VerifyEmailRequest represents the request body for confirming an email address
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// ResendVerificationRequest represents the request body for a new verification link
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Me returns the authenticated principal
func (h *AccountHandler) Me(c echo.Context) error {
	principalID, ok := middleware.GetPrincipalID(c)
	if !ok {
		return response.HandleAppError(c, domainerrors.ErrUnauthorized)
	}

	principal, err := h.authUC.GetPrincipal(c.Request().Context(), principalID)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toPrincipalResponse(principal))
}

// VerifyEmail confirms an email address from a verification token
func (h *AccountHandler) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid verification input")
	}
	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	principal, err := h.verification.Verify(c.Request().Context(), req.Token)
	if err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Success(c, http.StatusOK, toPrincipalResponse(principal))
}

// ResendVerification answers identically whether or not the email is known.
func (h *AccountHandler) ResendVerification(c echo.Context) error {
	var req ResendVerificationRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid resend verification input")
	}
	if err := c.Validate(&req); err != nil {
		return response.HandleAppError(c, err)
	}

	if err := h.verification.Resend(c.Request().Context(), req.Email); err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Message(c, http.StatusOK, resendVerificationMessage)
}

// UnlockPrincipal clears the lockout state of an account. Admin only.
func (h *AccountHandler) UnlockPrincipal(c echo.Context) error {
	principalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.HandleAppError(c, domainerrors.ErrPrincipalNotFound)
	}

	if err := h.authUC.UnlockPrincipal(c.Request().Context(), principalID); err != nil {
		return response.HandleAppError(c, err)
	}

	return response.Message(c, http.StatusOK, "Account unlocked")
}

// Package middleware contains echo middleware specific to the API server.
package middleware

import (
	"log/slog"
	"strings"

	"ideaboard/internal/delivery/api/response"
	deliverycontext "ideaboard/internal/delivery/context"
	"ideaboard/internal/domain/entity"
	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/domain/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const (
	contextKeyClaims = "auth_claims"
	bearerPrefix     = "Bearer "
)

// AuthMiddlewareParams holds dependencies for AuthMiddleware, injected by Fx.
type AuthMiddlewareParams struct {
	fx.In

	TokenIssuer service.TokenIssuer
	Logger      *slog.Logger `optional:"true"`
}

// AuthMiddleware authenticates requests with stateless access tokens.
type AuthMiddleware struct {
	issuer service.TokenIssuer
	logger *slog.Logger
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(params AuthMiddlewareParams) *AuthMiddleware {
	return &AuthMiddleware{issuer: params.TokenIssuer, logger: params.Logger}
}

// Authenticate requires a valid Bearer access token and stores its claims on the context.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return response.HandleAppError(c, domainerrors.ErrUnauthorized)
		}

		token, found := strings.CutPrefix(header, bearerPrefix)
		if !found || token == "" {
			return response.HandleAppError(c, domainerrors.ErrInvalidToken)
		}

		claims, err := m.issuer.Verify(token)
		if err != nil {
			return response.HandleAppError(c, err)
		}

		c.Set(contextKeyClaims, claims)
		c.SetRequest(c.Request().WithContext(
			deliverycontext.WithPrincipal(c.Request().Context(), claims.Subject, m.logger),
		))

		return next(c)
	}
}

// RequireRole rejects principals whose role does not satisfy required.
// It must be used AFTER the Authenticate middleware.
func (m *AuthMiddleware) RequireRole(required entity.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := GetClaims(c)
			if !ok {
				return response.HandleAppError(c, domainerrors.ErrUnauthorized)
			}
			if !claims.Role.Satisfies(required) {
				return response.HandleAppError(c, domainerrors.ErrForbidden)
			}

			return next(c)
		}
	}
}

// GetClaims returns the access token claims stored by Authenticate.
func GetClaims(c echo.Context) (*entity.AccessTokenClaims, bool) {
	claims, ok := c.Get(contextKeyClaims).(*entity.AccessTokenClaims)

	return claims, ok && claims != nil
}

// GetPrincipalID returns the authenticated principal id.
func GetPrincipalID(c echo.Context) (uuid.UUID, bool) {
	claims, ok := GetClaims(c)
	if !ok {
		return uuid.Nil, false
	}

	return claims.Subject, true
}

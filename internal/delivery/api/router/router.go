// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"ideaboard/config"
	"ideaboard/internal/delivery/api/middleware"
	"ideaboard/internal/delivery/api/router/handler"
	"ideaboard/internal/domain/entity"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler     *handler.AuthHandler
	PasswordHandler *handler.PasswordHandler
	AccountHandler  *handler.AccountHandler
	AuthMiddleware  *middleware.AuthMiddleware
	Registry        *prometheus.Registry `optional:"true"`
	Config          *config.Config
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler     *handler.AuthHandler
	passwordHandler *handler.PasswordHandler
	accountHandler  *handler.AccountHandler
	authMiddleware  *middleware.AuthMiddleware
	registry        *prometheus.Registry
	config          *config.Config
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:     params.AuthHandler,
		passwordHandler: params.PasswordHandler,
		accountHandler:  params.AccountHandler,
		authMiddleware:  params.AuthMiddleware,
		registry:        params.Registry,
		config:          params.Config,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", handler.HealthCheck)

	if r.registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	}

	apiV1 := e.Group("/api/v1")

	// Login and forgot-password each count against their own per-IP budget.
	loginLimiter := middleware.NewIPRateLimiter(r.config)
	forgotLimiter := middleware.NewIPRateLimiter(r.config)

	authGroup := apiV1.Group("/auth")
	{
		authGroup.POST("/register", r.authHandler.Register)
		authGroup.POST("/login", r.authHandler.Login, loginLimiter)
		authGroup.POST("/refresh", r.authHandler.Refresh)
		authGroup.POST("/logout", r.authHandler.Logout)
		authGroup.POST("/logout-all", r.authHandler.LogoutAll, r.authMiddleware.Authenticate)

		authGroup.POST("/forgot-password", r.passwordHandler.ForgotPassword, forgotLimiter)
		authGroup.GET("/reset-password/verify", r.passwordHandler.VerifyResetToken)
		authGroup.POST("/reset-password", r.passwordHandler.ResetPassword)
		authGroup.POST("/change-password", r.passwordHandler.ChangePassword, r.authMiddleware.Authenticate)

		authGroup.POST("/verify-email", r.accountHandler.VerifyEmail)
		authGroup.POST("/resend-verification", r.accountHandler.ResendVerification)
	}

	apiV1.GET("/me", r.accountHandler.Me, r.authMiddleware.Authenticate)

	adminGroup := apiV1.Group("/admin")
	adminGroup.Use(r.authMiddleware.Authenticate)
	adminGroup.Use(r.authMiddleware.RequireRole(entity.RoleAdmin))
	{
		adminGroup.POST("/principals/:id/unlock", r.accountHandler.UnlockPrincipal)
	}
}

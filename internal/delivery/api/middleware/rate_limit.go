package middleware

import (
	"math"
	"strconv"
	"time"

	"ideaboard/config"
	"ideaboard/internal/delivery/api/response"
	domainerrors "ideaboard/internal/domain/errors"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// NewIPRateLimiter limits requests per client IP to cfg.RateLimit.Requests per window.
// The budget refills continuously and at most Requests may arrive back to back.
func NewIPRateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	requests := cfg.RateLimit.Requests
	window := cfg.RateLimit.Window
	// Time for one request's worth of budget to refill.
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds() / float64(requests))))

	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(requests) / window.Seconds()),
		Burst:     requests,
		ExpiresIn: window + time.Minute,
	})

	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return response.HandleAppError(c, domainerrors.ErrForbidden)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", retryAfter)

			return response.HandleAppError(c, domainerrors.ErrRateLimited)
		},
	})
}

// Package worker runs background maintenance alongside the API server.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ideaboard/config"
	"ideaboard/internal/delivery"
	"ideaboard/internal/domain/lifecycle"
	"ideaboard/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

type janitor struct {
	interval time.Duration
	sessions usecase.RefreshTokenStore
	logger   *slog.Logger

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// JanitorParams holds dependencies for the session janitor
type JanitorParams struct {
	fx.In

	Lc       fx.Lifecycle
	Cfg      *config.Config
	Logger   *slog.Logger
	Sessions usecase.RefreshTokenStore
}

// NewJanitor creates a delivery that periodically deletes expired refresh tokens.
func NewJanitor(params JanitorParams) (delivery.Delivery, error) {
	if params.Cfg.Auth == nil || params.Cfg.Auth.PurgeInterval <= 0 {
		return nil, errors.New("auth.purgeInterval must be positive")
	}

	j := newJanitor(params.Cfg.Auth.PurgeInterval, params.Sessions, params.Logger)

	params.Lc.Append(fx.Hook{
		OnStop: j.stop,
	})

	return j, nil
}

func newJanitor(interval time.Duration, sessions usecase.RefreshTokenStore, logger *slog.Logger) *janitor {
	return &janitor{
		interval: interval,
		sessions: sessions,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Serve purges on every tick until stopped.
func (j *janitor) Serve(ctx context.Context) error {
	defer close(j.done)

	j.logger.Info("Starting session janitor", slog.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-j.quit:
			return nil
		case <-ticker.C:
			j.purge(ctx)
		}
	}
}

func (j *janitor) purge(ctx context.Context) {
	purgeCtx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancel()

	count, err := j.sessions.PurgeExpired(purgeCtx)
	if err != nil {
		j.logger.Error("Failed to purge expired refresh tokens", slog.Any("error", err))

		return
	}
	if count > 0 {
		j.logger.Info("Purged expired refresh tokens", slog.Int64("count", count))
	}
}

// stop signals Serve to return and waits for the current purge to finish.
func (j *janitor) stop(ctx context.Context) error {
	j.stopOnce.Do(func() { close(j.quit) })

	j.logger.Info("Shutting down session janitor")

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

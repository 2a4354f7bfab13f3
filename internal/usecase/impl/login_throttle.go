// Package impl contains the application-specific business rules implementations.
package impl

import (
	"context"
	"log/slog"
	"time"

	"ideaboard/config"
	deliverycontext "ideaboard/internal/delivery/context"
	"ideaboard/internal/domain/entity"
	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/domain/repository"
	"ideaboard/internal/domain/service"
	"ideaboard/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// loginThrottle implements the LoginThrottle interface on top of the principal row.
type loginThrottle struct {
	txManager   repository.TransactionManager
	maxFailures int
	window      time.Duration
	metrics     service.AuthMetrics
	clock       service.Clock
	logger      *slog.Logger
}

// LoginThrottleParams holds dependencies for LoginThrottle, injected by Fx.
type LoginThrottleParams struct {
	fx.In

	TxManager repository.TransactionManager
	Config    *config.Config
	Metrics   service.AuthMetrics `optional:"true"`
	Clock     service.Clock       `optional:"true"`
	Logger    *slog.Logger
}

// NewLoginThrottle is the constructor for loginThrottle.
func NewLoginThrottle(params LoginThrottleParams) usecase.LoginThrottle {
	return &loginThrottle{
		txManager:   params.TxManager,
		maxFailures: params.Config.Auth.MaxFailedLogins,
		window:      params.Config.Auth.LockoutWindow,
		metrics:     metricsOrNoop(params.Metrics),
		clock:       clockOrSystem(params.Clock),
		logger:      params.Logger,
	}
}

func (t *loginThrottle) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, t.logger)
}

// IsLocked is true iff the counter reached the limit and the last failure is inside the window.
func (t *loginThrottle) IsLocked(principal *entity.Principal) bool {
	return principal.FailedLoginCount >= t.maxFailures && t.withinWindow(principal, t.clock())
}

func (t *loginThrottle) withinWindow(principal *entity.Principal, now time.Time) bool {
	return principal.LastFailedLoginAt != nil && now.Sub(*principal.LastFailedLoginAt) < t.window
}

// Check heals a lapsed counter lazily, there is no background sweep.
func (t *loginThrottle) Check(ctx context.Context, principal *entity.Principal) error {
	if t.IsLocked(principal) {
		t.log(ctx).Warn("Login attempt on locked account", slog.Any("principal_id", principal.ID))

		return errors.Wrap(domainerrors.ErrAccountLocked, "account is locked")
	}

	if principal.FailedLoginCount == 0 || t.withinWindow(principal, t.clock()) {
		return nil
	}

	err := t.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		locked, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, principal.ID)
		if err != nil {
			return errors.Wrap(err, "failed to lock principal")
		}
		if locked.FailedLoginCount == 0 || t.withinWindow(locked, t.clock()) {
			*principal = *locked

			return nil
		}

		locked.ClearFailedLogins()
		if err := repoFactory.PrincipalRepo().Save(ctx, locked); err != nil {
			return errors.Wrap(err, "failed to reset failed login counter")
		}
		*principal = *locked

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to heal lockout state")
	}

	t.log(ctx).Debug("Lockout window elapsed, counter reset", slog.Any("principal_id", principal.ID))

	return nil
}

// RecordFailure increments under a row lock so concurrent failures are never lost.
func (t *loginThrottle) RecordFailure(ctx context.Context, principal *entity.Principal) (bool, error) {
	var locked bool

	err := t.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, principal.ID)
		if err != nil {
			return errors.Wrap(err, "failed to lock principal")
		}

		now := t.clock()
		if !t.withinWindow(current, now) {
			current.FailedLoginCount = 0
		}
		current.FailedLoginCount++
		current.LastFailedLoginAt = &now

		if err := repoFactory.PrincipalRepo().Save(ctx, current); err != nil {
			return errors.Wrap(err, "failed to record failed login")
		}

		locked = current.FailedLoginCount == t.maxFailures
		*principal = *current

		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to record login failure")
	}

	if locked {
		t.metrics.AccountLocked()
		t.log(ctx).Warn("Account locked after repeated failures",
			slog.Any("principal_id", principal.ID),
			slog.Int("failures", principal.FailedLoginCount))
	}

	return t.IsLocked(principal), nil
}

// ReserveAttempt counts the attempt as a failure before the password is checked,
// under the row lock, so concurrent guesses can never exceed maxFailures.
// RecordSuccess undoes the reservation when the password turns out correct.
func (t *loginThrottle) ReserveAttempt(ctx context.Context, principal *entity.Principal) error {
	var locked bool

	err := t.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, principal.ID)
		if err != nil {
			return errors.Wrap(err, "failed to lock principal")
		}

		now := t.clock()
		if !t.withinWindow(current, now) {
			current.FailedLoginCount = 0
		}
		if current.FailedLoginCount >= t.maxFailures {
			locked = true
			*principal = *current

			return nil
		}

		current.FailedLoginCount++
		current.LastFailedLoginAt = &now
		if err := repoFactory.PrincipalRepo().Save(ctx, current); err != nil {
			return errors.Wrap(err, "failed to reserve login attempt")
		}
		*principal = *current

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to reserve login attempt")
	}

	if locked {
		t.log(ctx).Warn("Login attempt on locked account", slog.Any("principal_id", principal.ID))

		return errors.Wrap(domainerrors.ErrAccountLocked, "account is locked")
	}

	return nil
}

// ConfirmFailure settles a reserved attempt whose password was wrong. Nothing is
// written: the reservation already counted it.
func (t *loginThrottle) ConfirmFailure(ctx context.Context, principal *entity.Principal) bool {
	if principal.FailedLoginCount == t.maxFailures {
		t.metrics.AccountLocked()
		t.log(ctx).Warn("Account locked after repeated failures",
			slog.Any("principal_id", principal.ID),
			slog.Int("failures", principal.FailedLoginCount))
	}

	return t.IsLocked(principal)
}

func (t *loginThrottle) RecordSuccess(ctx context.Context, principal *entity.Principal) error {
	err := t.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, principal.ID)
		if err != nil {
			return errors.Wrap(err, "failed to lock principal")
		}

		now := t.clock()
		current.ClearFailedLogins()
		current.LastLoginAt = &now

		if err := repoFactory.PrincipalRepo().Save(ctx, current); err != nil {
			return errors.Wrap(err, "failed to record successful login")
		}
		*principal = *current

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to record login success")
	}

	return nil
}

func (t *loginThrottle) Unlock(ctx context.Context, principalID uuid.UUID) error {
	err := t.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, principalID)
		if err != nil {
			if errors.Is(err, repository.ErrPrincipalNotFound) {
				return errors.Wrap(domainerrors.ErrPrincipalNotFound, "principal not found")
			}

			return errors.Wrap(err, "failed to lock principal")
		}

		current.ClearFailedLogins()

		return errors.Wrap(repoFactory.PrincipalRepo().Save(ctx, current), "failed to clear failed logins")
	})
	if err != nil {
		return errors.Wrap(err, "failed to unlock principal")
	}

	t.log(ctx).Info("Principal unlocked", slog.Any("principal_id", principalID))

	return nil
}

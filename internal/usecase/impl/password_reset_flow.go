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

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// passwordResetFlow implements the PasswordResetFlow interface.
type passwordResetFlow struct {
	txManager   repository.TransactionManager
	principals  repository.PrincipalRepository
	hasher      service.Hasher
	generator   service.TokenGenerator
	notifier    service.Notifier
	metrics     service.AuthMetrics
	tokenTTL    time.Duration
	cooldown    time.Duration
	maxAttempts int
	clock       service.Clock
	logger      *slog.Logger
}

// PasswordResetFlowParams holds dependencies for PasswordResetFlow, injected by Fx.
type PasswordResetFlowParams struct {
	fx.In

	TxManager     repository.TransactionManager
	PrincipalRepo repository.PrincipalRepository
	Hasher        service.Hasher
	Generator     service.TokenGenerator
	Notifier      service.Notifier
	Config        *config.Config
	Metrics       service.AuthMetrics `optional:"true"`
	Clock         service.Clock       `optional:"true"`
	Logger        *slog.Logger
}

// NewPasswordResetFlow is the constructor for passwordResetFlow.
func NewPasswordResetFlow(params PasswordResetFlowParams) usecase.PasswordResetFlow {
	return &passwordResetFlow{
		txManager:   params.TxManager,
		principals:  params.PrincipalRepo,
		hasher:      params.Hasher,
		generator:   params.Generator,
		notifier:    params.Notifier,
		metrics:     metricsOrNoop(params.Metrics),
		tokenTTL:    params.Config.Auth.ResetTokenTTL,
		cooldown:    params.Config.Auth.ResetCooldown,
		maxAttempts: params.Config.Auth.MaxResetAttempts,
		clock:       clockOrSystem(params.Clock),
		logger:      params.Logger,
	}
}

func (f *passwordResetFlow) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, f.logger)
}

// Request only returns storage failures. Every other outcome, including a failed
// email dispatch, looks the same to the caller.
func (f *passwordResetFlow) Request(ctx context.Context, email string) error {
	email = entity.NormalizeEmail(email)

	principal, err := f.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			f.metrics.ResetRequested(service.OutcomeSkipped)
			f.log(ctx).Info("Password reset requested for unknown email")

			return nil
		}

		return errors.Wrap(err, "failed to find principal")
	}

	var rawToken string
	err = f.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, principal.ID)
		if err != nil {
			return errors.Wrap(err, "failed to lock principal")
		}

		now := f.clock()
		if f.inCooldown(current, now) {
			return nil
		}

		rawToken, err = f.generator.NewOpaqueToken()
		if err != nil {
			return errors.Wrap(err, "failed to generate reset token")
		}

		expiresAt := now.Add(f.tokenTTL)
		current.ResetTokenHash = f.hasher.HashOpaque(rawToken)
		current.ResetTokenExpiresAt = &expiresAt
		current.ResetAttempts = 0
		*principal = *current

		return errors.Wrap(repoFactory.PrincipalRepo().Save(ctx, current), "failed to store reset token")
	})
	if err != nil {
		f.log(ctx).Error("Failed to issue reset token", slog.Any("principal_id", principal.ID), slog.Any("error", err))

		return errors.Wrap(err, "failed to request password reset")
	}

	if rawToken == "" {
		f.metrics.ResetRequested(service.OutcomeSkipped)
		f.log(ctx).Info("Password reset requested during cooldown", slog.Any("principal_id", principal.ID))

		return nil
	}

	if err := f.notifier.SendResetEmail(ctx, principal.Email, rawToken, principal.Name); err != nil {
		f.metrics.ResetRequested(service.OutcomeFailure)
		f.log(ctx).Error("Failed to send reset email", slog.Any("principal_id", principal.ID), slog.Any("error", err))

		return nil
	}

	f.metrics.ResetRequested(service.OutcomeSuccess)
	f.log(ctx).Info("Password reset email sent", slog.Any("principal_id", principal.ID))

	return nil
}

// inCooldown reports whether the active token was issued less than the cooldown ago.
// The issue time is not stored; it is derived from the expiry.
func (f *passwordResetFlow) inCooldown(principal *entity.Principal, now time.Time) bool {
	if !principal.HasActiveReset() {
		return false
	}
	issuedAt := principal.ResetTokenExpiresAt.Add(-f.tokenTTL)

	return now.Sub(issuedAt) < f.cooldown
}

func (f *passwordResetFlow) Verify(ctx context.Context, rawToken string, increment bool) (*entity.Principal, error) {
	var (
		verified  *entity.Principal
		rejection error
	)

	err := f.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		var err error
		verified, rejection, err = f.verifyLocked(ctx, repoFactory.PrincipalRepo(), rawToken, increment)

		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to verify reset token")
	}
	if rejection != nil {
		return nil, rejection
	}

	return verified, nil
}

// verifyLocked resolves rawToken and applies the expiry and attempt rules.
// A rejected token comes back as rejection with err nil, so state cleared on
// the way is committed rather than rolled back.
func (f *passwordResetFlow) verifyLocked(
	ctx context.Context,
	repo repository.PrincipalRepository,
	rawToken string,
	increment bool,
) (principal *entity.Principal, rejection error, err error) {
	if rawToken == "" {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "empty reset token"), nil
	}
	digest := f.hasher.HashOpaque(rawToken)

	found, err := repo.FindByResetTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return nil, errors.Wrap(domainerrors.ErrInvalidToken, "reset token not recognised"), nil
		}

		return nil, nil, errors.Wrap(err, "failed to find reset token")
	}

	principal, err = repo.FindByIDForUpdate(ctx, found.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to lock principal")
	}
	if !principal.HasActiveReset() || !f.hasher.ConstantTimeEquals(principal.ResetTokenHash, digest) {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "reset token superseded"), nil
	}

	if !f.clock().Before(*principal.ResetTokenExpiresAt) {
		principal.ClearReset()
		if err := repo.Save(ctx, principal); err != nil {
			return nil, nil, errors.Wrap(err, "failed to clear expired reset token")
		}
		f.log(ctx).Info("Expired reset token presented", slog.Any("principal_id", principal.ID))

		return nil, errors.Wrap(domainerrors.ErrTokenExpired, "reset token expired"), nil
	}

	if !increment {
		return principal, nil, nil
	}

	principal.ResetAttempts++
	if principal.ResetAttempts > f.maxAttempts {
		principal.ClearReset()
		if err := repo.Save(ctx, principal); err != nil {
			return nil, nil, errors.Wrap(err, "failed to clear exhausted reset token")
		}
		f.log(ctx).Warn("Reset token attempts exhausted", slog.Any("principal_id", principal.ID))

		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "reset token attempts exhausted"), nil
	}

	if err := repo.Save(ctx, principal); err != nil {
		return nil, nil, errors.Wrap(err, "failed to count reset attempt")
	}

	return principal, nil, nil
}

// Consume hashes outside the transaction, then re-checks the token under the row
// lock so two concurrent consumes of one token cannot both set a password.
func (f *passwordResetFlow) Consume(ctx context.Context, rawToken, newPassword string) error {
	if err := checkPasswordStrength(newPassword); err != nil {
		return err
	}

	// Consuming is not a guess, so it does not spend one of the token's attempts.
	principal, err := f.Verify(ctx, rawToken, false)
	if err != nil {
		return err
	}

	same, err := f.hasher.VerifyPassword(ctx, newPassword, principal.PasswordHash)
	if err != nil {
		return errors.Wrap(err, "failed to compare with current password")
	}
	if same {
		return errors.Wrap(domainerrors.ErrSamePassword, "new password equals current password")
	}

	passwordHash, err := f.hasher.HashPassword(ctx, newPassword)
	if err != nil {
		return errors.Wrap(err, "failed to hash new password")
	}

	digest := f.hasher.HashOpaque(rawToken)
	var revoked int64

	err = f.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, principal.ID)
		if err != nil {
			return errors.Wrap(err, "failed to lock principal")
		}

		now := f.clock()
		if !current.HasActiveReset() ||
			!f.hasher.ConstantTimeEquals(current.ResetTokenHash, digest) ||
			!now.Before(*current.ResetTokenExpiresAt) {
			return errors.Wrap(domainerrors.ErrInvalidToken, "reset token no longer active")
		}

		current.PasswordHash = passwordHash
		current.PasswordChangedAt = &now
		current.ClearReset()
		current.ClearFailedLogins()

		if err := repoFactory.PrincipalRepo().Save(ctx, current); err != nil {
			return errors.Wrap(err, "failed to save new password")
		}

		revoked, err = repoFactory.RefreshTokenRepo().RevokeAllForPrincipal(ctx, current.ID, now)

		return errors.Wrap(err, "failed to revoke refresh tokens")
	})
	if err != nil {
		return errors.Wrap(err, "failed to consume reset token")
	}

	f.log(ctx).Info("Password reset completed",
		slog.Any("principal_id", principal.ID),
		slog.Int64("revoked_sessions", revoked))

	return nil
}

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

type emailVerification struct {
	txManager  repository.TransactionManager
	principals repository.PrincipalRepository
	hasher     service.Hasher
	generator  service.TokenGenerator
	notifier   service.Notifier
	tokenTTL   time.Duration
	clock      service.Clock
	logger     *slog.Logger
}

// EmailVerificationParams holds dependencies for EmailVerification, injected by Fx.
type EmailVerificationParams struct {
	fx.In

	TxManager     repository.TransactionManager
	PrincipalRepo repository.PrincipalRepository
	Hasher        service.Hasher
	Generator     service.TokenGenerator
	Notifier      service.Notifier
	Config        *config.Config
	Clock         service.Clock `optional:"true"`
	Logger        *slog.Logger
}

// NewEmailVerification is the constructor for emailVerification.
func NewEmailVerification(params EmailVerificationParams) usecase.EmailVerificationUsecase {
	return &emailVerification{
		txManager:  params.TxManager,
		principals: params.PrincipalRepo,
		hasher:     params.Hasher,
		generator:  params.Generator,
		notifier:   params.Notifier,
		tokenTTL:   params.Config.Auth.VerificationTokenTTL,
		clock:      clockOrSystem(params.Clock),
		logger:     params.Logger,
	}
}

func (v *emailVerification) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, v.logger)
}

// Issue replaces any pending token, so only the latest email works.
// A failed dispatch is logged, the token stays stored for a later resend.
func (v *emailVerification) Issue(ctx context.Context, principal *entity.Principal) error {
	rawToken, err := v.generator.NewOpaqueToken()
	if err != nil {
		return errors.Wrap(err, "failed to generate verification token")
	}

	err = v.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, principal.ID)
		if err != nil {
			return errors.Wrap(err, "failed to lock principal")
		}

		expiresAt := v.clock().Add(v.tokenTTL)
		current.VerificationTokenHash = v.hasher.HashOpaque(rawToken)
		current.VerificationTokenExpiresAt = &expiresAt

		if err := repoFactory.PrincipalRepo().Save(ctx, current); err != nil {
			return errors.Wrap(err, "failed to store verification token")
		}
		*principal = *current

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to issue verification token")
	}

	if err := v.notifier.SendVerificationEmail(ctx, principal.Email, rawToken, principal.Name); err != nil {
		v.log(ctx).Error("Failed to send verification email", slog.Any("principal_id", principal.ID), slog.Any("error", err))

		return nil
	}

	v.log(ctx).Info("Verification email sent", slog.Any("principal_id", principal.ID))

	return nil
}

func (v *emailVerification) Verify(ctx context.Context, rawToken string) (*entity.Principal, error) {
	if rawToken == "" {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "empty verification token")
	}
	digest := v.hasher.HashOpaque(rawToken)

	found, err := v.principals.FindByVerificationTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return nil, errors.Wrap(domainerrors.ErrInvalidToken, "verification token not recognised")
		}

		return nil, errors.Wrap(err, "failed to find verification token")
	}

	var (
		verified *entity.Principal
		expired  bool
	)
	err = v.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, found.ID)
		if err != nil {
			return errors.Wrap(err, "failed to lock principal")
		}
		if current.VerificationTokenExpiresAt == nil ||
			!v.hasher.ConstantTimeEquals(current.VerificationTokenHash, digest) {
			return errors.Wrap(domainerrors.ErrInvalidToken, "verification token superseded")
		}

		now := v.clock()
		if !now.Before(*current.VerificationTokenExpiresAt) {
			expired = true
		} else {
			current.EmailVerified = true
			current.EmailVerifiedAt = &now
		}
		current.ClearVerification()
		verified = current

		return errors.Wrap(repoFactory.PrincipalRepo().Save(ctx, current), "failed to save verification state")
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to verify email")
	}
	if expired {
		return nil, errors.Wrap(domainerrors.ErrTokenExpired, "verification token expired")
	}

	v.log(ctx).Info("Email verified", slog.Any("principal_id", verified.ID))

	return verified, nil
}

func (v *emailVerification) Resend(ctx context.Context, email string) error {
	principal, err := v.principals.FindByEmail(ctx, entity.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			v.log(ctx).Info("Verification resend requested for unknown email")

			return nil
		}

		return errors.Wrap(err, "failed to find principal")
	}

	if principal.EmailVerified {
		v.log(ctx).Info("Verification resend requested for verified email", slog.Any("principal_id", principal.ID))

		return nil
	}

	return v.Issue(ctx, principal)
}

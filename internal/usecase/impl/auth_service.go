package impl

import (
	"context"
	"log/slog"
	"sync"
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

// timingPassword is hashed once and verified against for unknown emails, so a
// miss costs about as much as a wrong password.
const timingPassword = "unknown-principal-timing-guard"

// authService implements the AuthUsecase interface.
type authService struct {
	txManager    repository.TransactionManager
	principals   repository.PrincipalRepository
	sessions     usecase.RefreshTokenStore
	throttle     usecase.LoginThrottle
	verification usecase.EmailVerificationUsecase
	hasher       service.Hasher
	issuer       service.TokenIssuer
	metrics      service.AuthMetrics
	accessTTL    time.Duration
	refreshTTL   time.Duration
	clock        service.Clock
	logger       *slog.Logger

	timingHashOnce sync.Once
	timingHash     string
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager         repository.TransactionManager
	PrincipalRepo     repository.PrincipalRepository
	RefreshTokenStore usecase.RefreshTokenStore
	LoginThrottle     usecase.LoginThrottle
	EmailVerification usecase.EmailVerificationUsecase
	Hasher            service.Hasher
	TokenIssuer       service.TokenIssuer
	Config            *config.Config
	Metrics           service.AuthMetrics `optional:"true"`
	Clock             service.Clock       `optional:"true"`
	Logger            *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	return &authService{
		txManager:    params.TxManager,
		principals:   params.PrincipalRepo,
		sessions:     params.RefreshTokenStore,
		throttle:     params.LoginThrottle,
		verification: params.EmailVerification,
		hasher:       params.Hasher,
		issuer:       params.TokenIssuer,
		metrics:      metricsOrNoop(params.Metrics),
		accessTTL:    params.Config.Auth.AccessTokenTTL,
		refreshTTL:   params.Config.Auth.RefreshTokenTTL,
		clock:        clockOrSystem(params.Clock),
		logger:       params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register creates the principal, sends the verification email and signs the new account in.
func (srv *authService) Register(ctx context.Context, input *usecase.RegisterInput) (*usecase.AuthOutput, error) {
	email := entity.NormalizeEmail(input.Email)
	srv.log(ctx).Info("Starting registration", slog.String("email", email))

	if err := checkPasswordStrength(input.Password); err != nil {
		return nil, err
	}

	if _, err := srv.principals.FindByEmail(ctx, email); err == nil {
		return nil, errors.Wrap(domainerrors.ErrEmailTaken, "email already registered")
	} else if !errors.Is(err, repository.ErrPrincipalNotFound) {
		return nil, errors.Wrap(err, "failed to check email availability")
	}

	passwordHash, err := srv.hasher.HashPassword(ctx, input.Password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password during registration")
	}

	principal := &entity.Principal{
		ID:           uuid.New(),
		Email:        email,
		Name:         input.Name,
		PasswordHash: passwordHash,
		Role:         entity.RoleUser,
	}
	if err := srv.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			return nil, errors.Wrap(domainerrors.ErrEmailTaken, "email already registered")
		}

		return nil, errors.Wrap(err, "failed to create principal")
	}

	if err := srv.verification.Issue(ctx, principal); err != nil {
		srv.log(ctx).Error("Failed to issue verification token", slog.Any("principal_id", principal.ID), slog.Any("error", err))
	}

	output, err := srv.signIn(ctx, principal)
	if err != nil {
		return nil, err
	}

	srv.log(ctx).Info("Registration completed", slog.Any("principal_id", principal.ID))

	return output, nil
}

// Login collapses unknown email and wrong password into ErrInvalidCredentials.
// Only ErrAccountLocked is distinguishable.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.AuthOutput, error) {
	email := entity.NormalizeEmail(input.Email)

	principal, err := srv.principals.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrPrincipalNotFound) {
			return nil, errors.Wrap(err, "failed to find principal")
		}

		srv.burnTimingGuard(ctx, input.Password)
		srv.metrics.LoginAttempt(service.OutcomeFailure)
		srv.log(ctx).Warn("Login failed", slog.String("email", email), slog.String("reason", "unknown email"))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "unknown email")
	}

	if err := srv.throttle.ReserveAttempt(ctx, principal); err != nil {
		if errors.Is(err, domainerrors.ErrAccountLocked) {
			srv.metrics.LoginAttempt(service.OutcomeLocked)
		}

		return nil, err
	}

	ok, err := srv.hasher.VerifyPassword(ctx, input.Password, principal.PasswordHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to verify password")
	}

	if !ok {
		srv.throttle.ConfirmFailure(ctx, principal)
		srv.metrics.LoginAttempt(service.OutcomeFailure)
		srv.log(ctx).Warn("Login failed",
			slog.Any("principal_id", principal.ID),
			slog.String("reason", "wrong password"),
			slog.Int("failures", principal.FailedLoginCount))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "wrong password")
	}

	if err := srv.throttle.RecordSuccess(ctx, principal); err != nil {
		return nil, errors.Wrap(err, "failed to record login success")
	}

	output, err := srv.signIn(ctx, principal)
	if err != nil {
		return nil, err
	}

	srv.metrics.LoginAttempt(service.OutcomeSuccess)
	srv.log(ctx).Info("Login succeeded", slog.Any("principal_id", principal.ID))

	return output, nil
}

func (srv *authService) burnTimingGuard(ctx context.Context, password string) {
	srv.timingHashOnce.Do(func() {
		hash, err := srv.hasher.HashPassword(ctx, timingPassword)
		if err != nil {
			srv.log(ctx).Warn("Failed to prepare timing guard hash", slog.Any("error", err))

			return
		}
		srv.timingHash = hash
	})

	if srv.timingHash != "" {
		_, _ = srv.hasher.VerifyPassword(ctx, password, srv.timingHash)
	}
}

// Refresh maps every failure onto the refresh token taxonomy so the client logs out fully.
func (srv *authService) Refresh(ctx context.Context, refreshToken string) (*usecase.AuthOutput, error) {
	next, err := srv.sessions.Rotate(ctx, refreshToken, srv.refreshTTL)
	if err != nil {
		srv.metrics.RefreshAttempt(refreshOutcome(err))
		srv.log(ctx).Warn("Refresh rejected", slog.Any("error", err))

		return nil, err
	}

	principal, err := srv.principals.FindByID(ctx, next.Record.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			if revokeErr := srv.sessions.Revoke(ctx, next.Record.ID); revokeErr != nil {
				srv.log(ctx).Error("Failed to revoke orphaned refresh token",
					slog.Any("record_id", next.Record.ID),
					slog.Any("error", revokeErr))
			}
			srv.metrics.RefreshAttempt(service.OutcomeFailure)

			return nil, errors.Wrap(domainerrors.ErrTokenNotFound, "refresh token owner not found")
		}

		return nil, errors.Wrap(err, "failed to load principal")
	}

	access, claims, err := srv.issuer.Issue(principal.ID, principal.Role, srv.accessTTL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue access token")
	}

	srv.metrics.RefreshAttempt(service.OutcomeSuccess)
	srv.log(ctx).Debug("Tokens rotated", slog.Any("principal_id", principal.ID))

	return &usecase.AuthOutput{
		Tokens: usecase.TokenPair{
			AccessToken:           access,
			AccessTokenExpiresAt:  claims.ExpiresAt,
			RefreshToken:          next.Raw,
			RefreshTokenExpiresAt: next.Record.ExpiresAt,
		},
		Principal: principal,
	}, nil
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrTokenRevoked):
		return service.OutcomeReplay
	case errors.Is(err, domainerrors.ErrTokenExpired):
		return service.OutcomeExpired
	default:
		return service.OutcomeFailure
	}
}

func (srv *authService) Logout(ctx context.Context, refreshToken string) error {
	record, err := srv.sessions.VerifyAndConsume(ctx, refreshToken)
	if err != nil {
		if domainerrors.IsRefreshFailure(err) {
			srv.log(ctx).Debug("Logout with inactive refresh token")

			return nil
		}

		return errors.Wrap(err, "failed to resolve refresh token")
	}

	if err := srv.sessions.Revoke(ctx, record.ID); err != nil {
		return errors.Wrap(err, "failed to revoke refresh token")
	}

	srv.log(ctx).Info("Logged out", slog.Any("principal_id", record.PrincipalID), slog.Any("record_id", record.ID))

	return nil
}

func (srv *authService) LogoutAll(ctx context.Context, principalID uuid.UUID) (int64, error) {
	return srv.sessions.RevokeAllFor(ctx, principalID)
}

// ChangePassword spends both argon2 computations before taking the row lock. The
// write re-reads the principal under the lock so concurrent lockout, reset and
// verification updates survive; a hash that changed meanwhile fails the call.
func (srv *authService) ChangePassword(ctx context.Context, input *usecase.ChangePasswordInput) error {
	principal, err := srv.principals.FindByID(ctx, input.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return errors.Wrap(domainerrors.ErrPrincipalNotFound, "principal not found")
		}

		return errors.Wrap(err, "failed to find principal")
	}

	ok, err := srv.hasher.VerifyPassword(ctx, input.CurrentPassword, principal.PasswordHash)
	if err != nil {
		return errors.Wrap(err, "failed to verify current password")
	}
	if !ok {
		return errors.Wrap(domainerrors.ErrInvalidCredentials, "current password mismatch")
	}

	if input.CurrentPassword == input.NewPassword {
		return errors.Wrap(domainerrors.ErrSamePassword, "new password equals current password")
	}
	if err := checkPasswordStrength(input.NewPassword); err != nil {
		return err
	}

	passwordHash, err := srv.hasher.HashPassword(ctx, input.NewPassword)
	if err != nil {
		return errors.Wrap(err, "failed to hash new password")
	}

	verifiedHash := principal.PasswordHash
	var revoked int64

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		current, err := repoFactory.PrincipalRepo().FindByIDForUpdate(ctx, input.PrincipalID)
		if err != nil {
			if errors.Is(err, repository.ErrPrincipalNotFound) {
				return errors.Wrap(domainerrors.ErrPrincipalNotFound, "principal not found")
			}

			return errors.Wrap(err, "failed to lock principal")
		}
		if !srv.hasher.ConstantTimeEquals(current.PasswordHash, verifiedHash) {
			return errors.Wrap(domainerrors.ErrInvalidCredentials, "password changed concurrently")
		}

		now := srv.clock()
		current.PasswordHash = passwordHash
		current.PasswordChangedAt = &now
		if err := repoFactory.PrincipalRepo().Save(ctx, current); err != nil {
			return errors.Wrap(err, "failed to save new password")
		}

		revoked, err = repoFactory.RefreshTokenRepo().RevokeAllForPrincipal(ctx, current.ID, now)

		return errors.Wrap(err, "failed to revoke sessions after password change")
	})
	if err != nil {
		return errors.Wrap(err, "failed to change password")
	}

	srv.log(ctx).Info("Password changed", slog.Any("principal_id", input.PrincipalID), slog.Int64("revoked_sessions", revoked))

	return nil
}

func (srv *authService) Authenticate(_ context.Context, accessToken string) (*entity.AccessTokenClaims, error) {
	return srv.issuer.Verify(accessToken)
}

func (srv *authService) GetPrincipal(ctx context.Context, principalID uuid.UUID) (*entity.Principal, error) {
	principal, err := srv.principals.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return nil, errors.Wrap(domainerrors.ErrPrincipalNotFound, "principal not found")
		}

		return nil, errors.Wrap(err, "failed to find principal")
	}

	return principal, nil
}

func (srv *authService) UnlockPrincipal(ctx context.Context, principalID uuid.UUID) error {
	return srv.throttle.Unlock(ctx, principalID)
}

// signIn issues one access token and one refresh token for principal.
func (srv *authService) signIn(ctx context.Context, principal *entity.Principal) (*usecase.AuthOutput, error) {
	access, claims, err := srv.issuer.Issue(principal.ID, principal.Role, srv.accessTTL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue access token")
	}

	refresh, err := srv.sessions.Issue(ctx, principal.ID, srv.refreshTTL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to issue refresh token")
	}

	return &usecase.AuthOutput{
		Tokens: usecase.TokenPair{
			AccessToken:           access,
			AccessTokenExpiresAt:  claims.ExpiresAt,
			RefreshToken:          refresh.Raw,
			RefreshTokenExpiresAt: refresh.Record.ExpiresAt,
		},
		Principal: principal,
	}, nil
}

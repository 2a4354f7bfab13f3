package impl

import (
	"context"
	"log/slog"
	"time"

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

// refreshTokenStore implements the RefreshTokenStore interface.
type refreshTokenStore struct {
	repo      repository.RefreshTokenRepository
	hasher    service.Hasher
	generator service.TokenGenerator
	clock     service.Clock
	logger    *slog.Logger
}

// RefreshTokenStoreParams holds dependencies for RefreshTokenStore, injected by Fx.
type RefreshTokenStoreParams struct {
	fx.In

	RefreshTokenRepo repository.RefreshTokenRepository
	Hasher           service.Hasher
	Generator        service.TokenGenerator
	Clock            service.Clock `optional:"true"`
	Logger           *slog.Logger
}

// NewRefreshTokenStore is the constructor for refreshTokenStore.
func NewRefreshTokenStore(params RefreshTokenStoreParams) usecase.RefreshTokenStore {
	return &refreshTokenStore{
		repo:      params.RefreshTokenRepo,
		hasher:    params.Hasher,
		generator: params.Generator,
		clock:     clockOrSystem(params.Clock),
		logger:    params.Logger,
	}
}

func (s *refreshTokenStore) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, s.logger)
}

func (s *refreshTokenStore) Issue(ctx context.Context, principalID uuid.UUID, ttl time.Duration) (*usecase.IssuedRefreshToken, error) {
	issued, err := s.newRecord(principalID, ttl)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, issued.Record); err != nil {
		return nil, errors.Wrap(err, "failed to store refresh token")
	}

	s.log(ctx).Debug("Refresh token issued",
		slog.Any("principal_id", principalID),
		slog.Any("record_id", issued.Record.ID))

	return issued, nil
}

func (s *refreshTokenStore) newRecord(principalID uuid.UUID, ttl time.Duration) (*usecase.IssuedRefreshToken, error) {
	raw, err := s.generator.NewOpaqueToken()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate refresh token")
	}

	now := s.clock()
	record := &entity.RefreshTokenRecord{
		ID:          uuid.New(),
		PrincipalID: principalID,
		TokenDigest: s.hasher.HashOpaque(raw),
		RotationID:  uuid.New(),
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	return &usecase.IssuedRefreshToken{Raw: raw, Record: record}, nil
}

func (s *refreshTokenStore) VerifyAndConsume(ctx context.Context, raw string) (*entity.RefreshTokenRecord, error) {
	if raw == "" {
		return nil, errors.Wrap(domainerrors.ErrTokenNotFound, "empty refresh token")
	}

	record, err := s.repo.FindByDigest(ctx, s.hasher.HashOpaque(raw))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, errors.Wrap(domainerrors.ErrTokenNotFound, "refresh token not recognised")
		}

		return nil, errors.Wrap(err, "failed to find refresh token")
	}

	if record.Revoked {
		return nil, errors.Wrap(domainerrors.ErrTokenRevoked, "refresh token already used")
	}

	if record.IsExpired(s.clock()) {
		if err := s.repo.Delete(ctx, record.ID); err != nil {
			s.log(ctx).Warn("Failed to purge expired refresh token", slog.Any("record_id", record.ID), slog.Any("error", err))
		}

		return nil, errors.Wrap(domainerrors.ErrTokenExpired, "refresh token expired")
	}

	return record, nil
}

// Rotate relies on RevokeAndInsert's conditional write: of two racing callers
// that both pass VerifyAndConsume, exactly one flips the revoked flag.
func (s *refreshTokenStore) Rotate(ctx context.Context, raw string, ttl time.Duration) (*usecase.IssuedRefreshToken, error) {
	current, err := s.VerifyAndConsume(ctx, raw)
	if err != nil {
		return nil, err
	}

	next, err := s.newRecord(current.PrincipalID, ttl)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RevokeAndInsert(ctx, current.ID, next.Record, s.clock()); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenRevoked) {
			s.log(ctx).Warn("Refresh token lost rotation race",
				slog.Any("principal_id", current.PrincipalID),
				slog.Any("record_id", current.ID))

			return nil, errors.Wrap(domainerrors.ErrTokenRevoked, "refresh token already used")
		}

		return nil, errors.Wrap(err, "failed to rotate refresh token")
	}

	s.log(ctx).Debug("Refresh token rotated",
		slog.Any("principal_id", current.PrincipalID),
		slog.Any("old_record_id", current.ID),
		slog.Any("new_record_id", next.Record.ID))

	return next, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, recordID uuid.UUID) error {
	if _, err := s.repo.RevokeIfActive(ctx, recordID, s.clock()); err != nil {
		return errors.Wrap(err, "failed to revoke refresh token")
	}

	return nil
}

func (s *refreshTokenStore) RevokeAllFor(ctx context.Context, principalID uuid.UUID) (int64, error) {
	count, err := s.repo.RevokeAllForPrincipal(ctx, principalID, s.clock())
	if err != nil {
		return 0, errors.Wrap(err, "failed to revoke refresh tokens")
	}

	s.log(ctx).Info("Refresh tokens revoked", slog.Any("principal_id", principalID), slog.Int64("count", count))

	return count, nil
}

func (s *refreshTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, s.clock())
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge expired refresh tokens")
	}

	return count, nil
}

package postgres

import (
	"context"
	"time"

	"ideaboard/internal/domain/entity"
	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/domain/repository"
	"ideaboard/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// refreshTokenRepository implements the domain.RefreshTokenRepository interface.
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository is the constructor for refreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// Create persists a new refresh token record.
func (repo *refreshTokenRepository) Create(ctx context.Context, record *entity.RefreshTokenRecord) error {
	return createRefreshToken(repo.db.WithContext(ctx), record)
}

// FindByDigest reads from the primary so a rotation never sees a stale replica row.
func (repo *refreshTokenRepository) FindByDigest(ctx context.Context, digest string) (*entity.RefreshTokenRecord, error) {
	var tokenM model.RefreshTokenModel

	err := repo.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("token_digest = ?", digest).
		First(&tokenM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(repository.ErrRefreshTokenNotFound)
		}

		return nil, domainerrors.NewStorageError(err, "failed to find refresh token")
	}

	return toRefreshTokenDomain(&tokenM), nil
}

// RevokeIfActive is the compare-and-revoke: UPDATE ... WHERE id = ? AND revoked = false.
func (repo *refreshTokenRepository) RevokeIfActive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return revokeIfActive(repo.db.WithContext(ctx), id, at)
}

// RevokeAndInsert revokes oldID and inserts next in one transaction.
func (repo *refreshTokenRepository) RevokeAndInsert(ctx context.Context, oldID uuid.UUID, next *entity.RefreshTokenRecord, at time.Time) error {
	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		revoked, err := revokeIfActive(tx, oldID, at)
		if err != nil {
			return err
		}
		if !revoked {
			return errors.WithStack(repository.ErrRefreshTokenRevoked)
		}

		return createRefreshToken(tx, next)
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// RevokeAllForPrincipal revokes every active record of a principal.
func (repo *refreshTokenRepository) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID, at time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.RefreshTokenModel{}).
		Where("principal_id = ? AND revoked = ?", principalID, false).
		Updates(map[string]any{"revoked": true, "revoked_at": at})
	if result.Error != nil {
		return 0, domainerrors.NewStorageError(result.Error, "failed to revoke refresh tokens")
	}

	return result.RowsAffected, nil
}

// Delete removes a record by id. Deleting a missing record is not an error.
func (repo *refreshTokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := repo.db.WithContext(ctx).Where("id = ?", id).Delete(&model.RefreshTokenModel{}).Error; err != nil {
		return domainerrors.NewStorageError(err, "failed to delete refresh token")
	}

	return nil
}

// DeleteExpired removes records that expired before the cutoff.
func (repo *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).Where("expires_at <= ?", before).Delete(&model.RefreshTokenModel{})
	if result.Error != nil {
		return 0, domainerrors.NewStorageError(result.Error, "failed to delete expired refresh tokens")
	}

	return result.RowsAffected, nil
}

func createRefreshToken(db *gorm.DB, record *entity.RefreshTokenRecord) error {
	tokenM := fromRefreshTokenDomain(record)

	if err := db.Create(tokenM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return domainerrors.ErrInternalError.WrapMessage("refresh token digest collision")
		}
		if isForeignKeyConstraintViolation(err) {
			return errors.Wrap(repository.ErrPrincipalNotFound, "invalid principal reference")
		}

		return domainerrors.NewStorageError(err, "failed to create refresh token")
	}

	record.CreatedAt = tokenM.CreatedAt

	return nil
}

func revokeIfActive(db *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	result := db.Model(&model.RefreshTokenModel{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]any{"revoked": true, "revoked_at": at})
	if result.Error != nil {
		return false, domainerrors.NewStorageError(result.Error, "failed to revoke refresh token")
	}

	return result.RowsAffected == 1, nil
}

// --- Mapper functions ---

func toRefreshTokenDomain(data *model.RefreshTokenModel) *entity.RefreshTokenRecord {
	return &entity.RefreshTokenRecord{
		ID:          data.ID,
		PrincipalID: data.PrincipalID,
		TokenDigest: data.TokenDigest,
		RotationID:  data.RotationID,
		ExpiresAt:   data.ExpiresAt,
		Revoked:     data.Revoked,
		RevokedAt:   data.RevokedAt,
		CreatedAt:   data.CreatedAt,
	}
}

func fromRefreshTokenDomain(data *entity.RefreshTokenRecord) *model.RefreshTokenModel {
	return &model.RefreshTokenModel{
		ID:          data.ID,
		PrincipalID: data.PrincipalID,
		TokenDigest: data.TokenDigest,
		RotationID:  data.RotationID,
		ExpiresAt:   data.ExpiresAt,
		Revoked:     data.Revoked,
		RevokedAt:   data.RevokedAt,
		CreatedAt:   data.CreatedAt,
	}
}

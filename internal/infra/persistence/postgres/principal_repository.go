// Package postgres contains the concrete implementation of the persistence layer using GORM and PostgreSQL.
package postgres

import (
	"context"

	"ideaboard/internal/domain/entity"
	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/domain/repository"
	"ideaboard/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"
)

// principalRepository implements the domain.PrincipalRepository interface.
type principalRepository struct {
	db *gorm.DB
}

// NewPrincipalRepository is the constructor for principalRepository.
func NewPrincipalRepository(db *gorm.DB) repository.PrincipalRepository {
	return &principalRepository{db: db}
}

// Create inserts a new principal.
func (repo *principalRepository) Create(ctx context.Context, principal *entity.Principal) error {
	principalM := fromPrincipalDomain(principal)

	if err := repo.db.WithContext(ctx).Create(principalM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return errors.WithStack(repository.ErrEmailAlreadyExists)
		}
		if isCheckConstraintViolation(err) {
			return domainerrors.ErrValidationFailed.WrapMessage("principal violates a check constraint")
		}

		return domainerrors.NewStorageError(err, "failed to create principal")
	}

	principal.CreatedAt = principalM.CreatedAt
	principal.UpdatedAt = principalM.UpdatedAt

	return nil
}

// FindByID retrieves a principal by identifier.
func (repo *principalRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Principal, error) {
	return repo.first(ctx, "id = ?", id)
}

// FindByIDForUpdate retrieves a principal with SELECT ... FOR UPDATE on the primary.
func (repo *principalRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Principal, error) {
	var principalM model.PrincipalModel

	err := repo.db.WithContext(ctx).
		Clauses(dbresolver.Write, clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&principalM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(repository.ErrPrincipalNotFound)
		}

		return nil, domainerrors.NewStorageError(err, "failed to lock principal")
	}

	return toPrincipalDomain(&principalM), nil
}

// FindByEmail retrieves a principal by email, case-insensitively.
func (repo *principalRepository) FindByEmail(ctx context.Context, email string) (*entity.Principal, error) {
	return repo.first(ctx, "LOWER(email) = ?", entity.NormalizeEmail(email))
}

// FindByResetTokenHash retrieves the principal owning the active reset token digest.
func (repo *principalRepository) FindByResetTokenHash(ctx context.Context, digest string) (*entity.Principal, error) {
	return repo.first(ctx, "reset_token_hash = ?", digest)
}

// FindByVerificationTokenHash retrieves the principal owning the pending verification token digest.
func (repo *principalRepository) FindByVerificationTokenHash(ctx context.Context, digest string) (*entity.Principal, error) {
	return repo.first(ctx, "verification_token_hash = ?", digest)
}

// Save writes every mutable column, including zero values.
func (repo *principalRepository) Save(ctx context.Context, principal *entity.Principal) error {
	principalM := fromPrincipalDomain(principal)

	result := repo.db.WithContext(ctx).
		Model(&model.PrincipalModel{}).
		Where("id = ?", principal.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(principalM)
	if result.Error != nil {
		if isUniqueConstraintViolation(result.Error) {
			return errors.WithStack(repository.ErrEmailAlreadyExists)
		}

		return domainerrors.NewStorageError(result.Error, "failed to save principal")
	}
	if result.RowsAffected == 0 {
		return errors.WithStack(repository.ErrPrincipalNotFound)
	}

	principal.UpdatedAt = principalM.UpdatedAt

	return nil
}

func (repo *principalRepository) first(ctx context.Context, query string, args ...any) (*entity.Principal, error) {
	var principalM model.PrincipalModel

	err := repo.db.WithContext(ctx).Where(query, args...).First(&principalM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithStack(repository.ErrPrincipalNotFound)
		}

		return nil, domainerrors.NewStorageError(err, "failed to find principal")
	}

	return toPrincipalDomain(&principalM), nil
}

// --- Mapper functions ---

func toPrincipalDomain(data *model.PrincipalModel) *entity.Principal {
	return &entity.Principal{
		ID:                         data.ID,
		Email:                      data.Email,
		Name:                       data.Name,
		PasswordHash:               data.PasswordHash,
		Role:                       entity.Role(data.Role),
		EmailVerified:              data.EmailVerified,
		EmailVerifiedAt:            data.EmailVerifiedAt,
		FailedLoginCount:           data.FailedLoginCount,
		LastFailedLoginAt:          data.LastFailedLoginAt,
		ResetTokenHash:             derefString(data.ResetTokenHash),
		ResetTokenExpiresAt:        data.ResetTokenExpiresAt,
		ResetAttempts:              data.ResetAttempts,
		VerificationTokenHash:      derefString(data.VerificationTokenHash),
		VerificationTokenExpiresAt: data.VerificationTokenExpiresAt,
		PasswordChangedAt:          data.PasswordChangedAt,
		LastLoginAt:                data.LastLoginAt,
		CreatedAt:                  data.CreatedAt,
		UpdatedAt:                  data.UpdatedAt,
	}
}

func fromPrincipalDomain(data *entity.Principal) *model.PrincipalModel {
	return &model.PrincipalModel{
		ID:                         data.ID,
		Email:                      entity.NormalizeEmail(data.Email),
		Name:                       data.Name,
		PasswordHash:               data.PasswordHash,
		Role:                       data.Role.String(),
		EmailVerified:              data.EmailVerified,
		EmailVerifiedAt:            data.EmailVerifiedAt,
		FailedLoginCount:           data.FailedLoginCount,
		LastFailedLoginAt:          data.LastFailedLoginAt,
		ResetTokenHash:             nullableString(data.ResetTokenHash),
		ResetTokenExpiresAt:        data.ResetTokenExpiresAt,
		ResetAttempts:              data.ResetAttempts,
		VerificationTokenHash:      nullableString(data.VerificationTokenHash),
		VerificationTokenExpiresAt: data.VerificationTokenExpiresAt,
		PasswordChangedAt:          data.PasswordChangedAt,
		LastLoginAt:                data.LastLoginAt,
		CreatedAt:                  data.CreatedAt,
		UpdatedAt:                  data.UpdatedAt,
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

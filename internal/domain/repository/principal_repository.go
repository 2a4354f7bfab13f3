// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"

	"ideaboard/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for principal persistence.
var (
	// ErrPrincipalNotFound is returned when no principal matches the lookup.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrEmailAlreadyExists is returned when the unique email constraint is violated.
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// PrincipalRepository persists accounts together with their embedded lockout, reset and verification state.
type PrincipalRepository interface {
	// Create inserts a new principal.
	Create(ctx context.Context, principal *entity.Principal) error

	// FindByID retrieves a principal by identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Principal, error)

	// FindByIDForUpdate retrieves a principal and locks its row until the surrounding transaction ends.
	// Outside a transaction it behaves like FindByID.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Principal, error)

	// FindByEmail retrieves a principal by email, case-insensitively.
	FindByEmail(ctx context.Context, email string) (*entity.Principal, error)

	// FindByResetTokenHash retrieves the principal whose active reset token has this digest.
	FindByResetTokenHash(ctx context.Context, digest string) (*entity.Principal, error)

	// FindByVerificationTokenHash retrieves the principal whose pending verification token has this digest.
	FindByVerificationTokenHash(ctx context.Context, digest string) (*entity.Principal, error)

	// Save writes every mutable field of the principal back.
	Save(ctx context.Context, principal *entity.Principal) error
}

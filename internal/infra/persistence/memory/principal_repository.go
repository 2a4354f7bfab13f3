package memory

import (
	"context"
	"time"

	"ideaboard/internal/domain/entity"
	"ideaboard/internal/domain/repository"
	"ideaboard/internal/errors"

	"github.com/google/uuid"
)

type principalRepo struct {
	store   *Store
	locking bool
}

func (r *principalRepo) Create(_ context.Context, principal *entity.Principal) error {
	return r.store.with(r.locking, func(st *state) error {
		email := entity.NormalizeEmail(principal.Email)
		for _, existing := range st.principals {
			if existing.Email == email {
				return errors.WithStack(repository.ErrEmailAlreadyExists)
			}
		}

		now := time.Now().UTC()
		if principal.CreatedAt.IsZero() {
			principal.CreatedAt = now
		}
		principal.UpdatedAt = now
		principal.Email = email

		st.principals[principal.ID] = clonePrincipal(principal)

		return nil
	})
}

func (r *principalRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Principal, error) {
	return r.find(func(p *entity.Principal) bool { return p.ID == id })
}

// FindByIDForUpdate needs no extra locking: a transaction already holds the store mutex.
func (r *principalRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Principal, error) {
	return r.FindByID(ctx, id)
}

func (r *principalRepo) FindByEmail(_ context.Context, email string) (*entity.Principal, error) {
	email = entity.NormalizeEmail(email)

	return r.find(func(p *entity.Principal) bool { return p.Email == email })
}

func (r *principalRepo) FindByResetTokenHash(_ context.Context, digest string) (*entity.Principal, error) {
	if digest == "" {
		return nil, errors.WithStack(repository.ErrPrincipalNotFound)
	}

	return r.find(func(p *entity.Principal) bool { return p.ResetTokenHash == digest })
}

func (r *principalRepo) FindByVerificationTokenHash(_ context.Context, digest string) (*entity.Principal, error) {
	if digest == "" {
		return nil, errors.WithStack(repository.ErrPrincipalNotFound)
	}

	return r.find(func(p *entity.Principal) bool { return p.VerificationTokenHash == digest })
}

func (r *principalRepo) Save(_ context.Context, principal *entity.Principal) error {
	return r.store.with(r.locking, func(st *state) error {
		existing, ok := st.principals[principal.ID]
		if !ok {
			return errors.WithStack(repository.ErrPrincipalNotFound)
		}

		email := entity.NormalizeEmail(principal.Email)
		for id, other := range st.principals {
			if id != principal.ID && other.Email == email {
				return errors.WithStack(repository.ErrEmailAlreadyExists)
			}
		}

		principal.Email = email
		principal.CreatedAt = existing.CreatedAt
		principal.UpdatedAt = time.Now().UTC()
		st.principals[principal.ID] = clonePrincipal(principal)

		return nil
	})
}

func (r *principalRepo) find(match func(*entity.Principal) bool) (*entity.Principal, error) {
	var found *entity.Principal
	err := r.store.with(r.locking, func(st *state) error {
		for _, p := range st.principals {
			if match(p) {
				found = clonePrincipal(p)

				return nil
			}
		}

		return errors.WithStack(repository.ErrPrincipalNotFound)
	})

	return found, err
}

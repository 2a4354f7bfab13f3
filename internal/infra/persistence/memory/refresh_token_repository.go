package memory

import (
	"context"
	"time"

	"ideaboard/internal/domain/entity"
	"ideaboard/internal/domain/repository"
	"ideaboard/internal/errors"

	"github.com/google/uuid"
)

// ErrDigestCollision is returned when a record with the same digest already exists.
var ErrDigestCollision = errors.New("refresh token digest already exists")

type refreshTokenRepo struct {
	store   *Store
	locking bool
}

func (r *refreshTokenRepo) Create(_ context.Context, record *entity.RefreshTokenRecord) error {
	return r.store.with(r.locking, func(st *state) error {
		return insertRecord(st, record)
	})
}

func (r *refreshTokenRepo) FindByDigest(_ context.Context, digest string) (*entity.RefreshTokenRecord, error) {
	var found *entity.RefreshTokenRecord
	err := r.store.with(r.locking, func(st *state) error {
		for _, rec := range st.refreshTokens {
			if rec.TokenDigest == digest {
				found = cloneRecord(rec)

				return nil
			}
		}

		return errors.WithStack(repository.ErrRefreshTokenNotFound)
	})

	return found, err
}

func (r *refreshTokenRepo) RevokeIfActive(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var revoked bool
	err := r.store.with(r.locking, func(st *state) error {
		revoked = revokeRecord(st, id, at)

		return nil
	})

	return revoked, err
}

func (r *refreshTokenRepo) RevokeAndInsert(_ context.Context, oldID uuid.UUID, next *entity.RefreshTokenRecord, at time.Time) error {
	return r.store.with(r.locking, func(st *state) error {
		old, ok := st.refreshTokens[oldID]
		if !ok || old.Revoked {
			return errors.WithStack(repository.ErrRefreshTokenRevoked)
		}
		for _, rec := range st.refreshTokens {
			if rec.TokenDigest == next.TokenDigest {
				return errors.WithStack(ErrDigestCollision)
			}
		}

		revokeRecord(st, oldID, at)

		return insertRecord(st, next)
	})
}

func (r *refreshTokenRepo) RevokeAllForPrincipal(_ context.Context, principalID uuid.UUID, at time.Time) (int64, error) {
	var count int64
	err := r.store.with(r.locking, func(st *state) error {
		for id, rec := range st.refreshTokens {
			if rec.PrincipalID == principalID && revokeRecord(st, id, at) {
				count++
			}
		}

		return nil
	})

	return count, err
}

func (r *refreshTokenRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.store.with(r.locking, func(st *state) error {
		delete(st.refreshTokens, id)

		return nil
	})
}

func (r *refreshTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var count int64
	err := r.store.with(r.locking, func(st *state) error {
		for id, rec := range st.refreshTokens {
			if !before.Before(rec.ExpiresAt) {
				delete(st.refreshTokens, id)
				count++
			}
		}

		return nil
	})

	return count, err
}

func insertRecord(st *state, record *entity.RefreshTokenRecord) error {
	for _, rec := range st.refreshTokens {
		if rec.TokenDigest == record.TokenDigest {
			return errors.WithStack(ErrDigestCollision)
		}
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	st.refreshTokens[record.ID] = cloneRecord(record)

	return nil
}

// revokeRecord is the compare-and-revoke; it reports whether this call flipped the flag.
func revokeRecord(st *state, id uuid.UUID, at time.Time) bool {
	rec, ok := st.refreshTokens[id]
	if !ok || rec.Revoked {
		return false
	}
	rec.Revoked = true
	revokedAt := at
	rec.RevokedAt = &revokedAt

	return true
}

// Package memory is an in-process implementation of the repository contracts.
// Every operation, and every transaction as a whole, runs under one mutex, so
// a transaction is serializable and a failed one is rolled back from a snapshot.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"ideaboard/internal/domain/entity"
	"ideaboard/internal/domain/repository"
	"ideaboard/internal/errors"

	"github.com/google/uuid"
)

// Store holds principals and refresh tokens.
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	principals    map[uuid.UUID]*entity.Principal
	refreshTokens map[uuid.UUID]*entity.RefreshTokenRecord
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: &state{
		principals:    make(map[uuid.UUID]*entity.Principal),
		refreshTokens: make(map[uuid.UUID]*entity.RefreshTokenRecord),
	}}
}

// PrincipalRepo returns a PrincipalRepository that locks per call.
func (s *Store) PrincipalRepo() repository.PrincipalRepository {
	return &principalRepo{store: s, locking: true}
}

// RefreshTokenRepo returns a RefreshTokenRepository that locks per call.
func (s *Store) RefreshTokenRepo() repository.RefreshTokenRepository {
	return &refreshTokenRepo{store: s, locking: true}
}

// Execute runs fn with the store locked, restoring the prior state if fn fails or panics.
func (s *Store) Execute(ctx context.Context, fn func(repository.RepositoryFactory) error) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
	}()

	if err := fn(txFactory{store: s}); err != nil {
		return err
	}
	committed = true

	return nil
}

type txFactory struct {
	store *Store
}

func (f txFactory) PrincipalRepo() repository.PrincipalRepository {
	return &principalRepo{store: f.store}
}

func (f txFactory) RefreshTokenRepo() repository.RefreshTokenRepository {
	return &refreshTokenRepo{store: f.store}
}

// with runs fn against the live state, taking the lock unless the caller already holds it.
func (s *Store) with(locking bool, fn func(st *state) error) error {
	if locking {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	return fn(s.state)
}

func (st *state) clone() *state {
	out := &state{
		principals:    make(map[uuid.UUID]*entity.Principal, len(st.principals)),
		refreshTokens: make(map[uuid.UUID]*entity.RefreshTokenRecord, len(st.refreshTokens)),
	}
	for id, p := range st.principals {
		out.principals[id] = clonePrincipal(p)
	}
	for id, r := range st.refreshTokens {
		out.refreshTokens[id] = cloneRecord(r)
	}

	return out
}

func clonePrincipal(p *entity.Principal) *entity.Principal {
	c := *p
	c.EmailVerifiedAt = cloneTime(p.EmailVerifiedAt)
	c.LastFailedLoginAt = cloneTime(p.LastFailedLoginAt)
	c.ResetTokenExpiresAt = cloneTime(p.ResetTokenExpiresAt)
	c.VerificationTokenExpiresAt = cloneTime(p.VerificationTokenExpiresAt)
	c.PasswordChangedAt = cloneTime(p.PasswordChangedAt)
	c.LastLoginAt = cloneTime(p.LastLoginAt)

	return &c
}

func cloneRecord(r *entity.RefreshTokenRecord) *entity.RefreshTokenRecord {
	c := *r
	c.RevokedAt = cloneTime(r.RevokedAt)

	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t

	return &c
}

// Len reports how many principals and refresh token records are stored.
func (s *Store) Len() (principals, refreshTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.state.principals), len(s.state.refreshTokens)
}

// RefreshTokens returns copies of every stored record.
func (s *Store) RefreshTokens() []*entity.RefreshTokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.RefreshTokenRecord, 0, len(s.state.refreshTokens))
	for r := range maps.Values(s.state.refreshTokens) {
		out = append(out, cloneRecord(r))
	}

	return out
}

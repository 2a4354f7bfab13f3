// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"context"

	"ideaboard/internal/errors"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many expensive hash computations run at once.
// Work runs on its own goroutine; the caller only waits for that task.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a pool with the given number of worker slots (minimum 1).
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}

	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Do runs fn once a slot is free and waits for it to finish.
// When ctx ends first, Do returns the context error and fn's results must be ignored.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "acquire hashing slot")
	}

	done := make(chan struct{})
	go func() {
		defer p.sem.Release(1)
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

package worker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"ideaboard/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// purgeCounter implements only PurgeExpired; the janitor calls nothing else.
type purgeCounter struct {
	usecase.RefreshTokenStore

	calls atomic.Int64
	err   error
}

func (p *purgeCounter) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)

	return 2, p.err
}

func newTestJanitor(sessions usecase.RefreshTokenStore) *janitor {
	return newJanitor(5*time.Millisecond, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestJanitor_PurgesUntilStopped(t *testing.T) {
	sessions := &purgeCounter{}
	j := newTestJanitor(sessions)

	served := make(chan error, 1)
	go func() { served <- j.Serve(context.Background()) }()

	require.Eventually(t, func() bool { return sessions.calls.Load() >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, j.stop(context.Background()))
	require.NoError(t, <-served)

	calls := sessions.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, sessions.calls.Load())

	// A second stop is harmless.
	require.NoError(t, j.stop(context.Background()))
}

func TestJanitor_KeepsRunningAfterPurgeError(t *testing.T) {
	sessions := &purgeCounter{err: errors.New("database unavailable")}
	j := newTestJanitor(sessions)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- j.Serve(ctx) }()

	require.Eventually(t, func() bool { return sessions.calls.Load() >= 2 }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-served)
}

package impl

import (
	"context"
	"testing"
	"time"

	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/domain/service"
	"ideaboard/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordResetFlow_UnknownEmailIsSilent(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.reset.Request(context.Background(), "nobody@example.com"))

	assert.Empty(t, h.notifier.tokens("reset"))
	assert.Equal(t, 1, h.metrics.reset[service.OutcomeSkipped])
}

func TestPasswordResetFlow_RequestStoresDigest(t *testing.T) {
	h := newHarness(t)
	principal := h.seedPrincipal(t, testEmail, testPassword)

	require.NoError(t, h.reset.Request(context.Background(), "  ALICE@example.com "))
	raw := h.notifier.last(t, "reset")

	stored := h.reload(t, principal.ID)
	assert.Equal(t, h.hasher.HashOpaque(raw), stored.ResetTokenHash)
	assert.NotEqual(t, raw, stored.ResetTokenHash)
	require.NotNil(t, stored.ResetTokenExpiresAt)
	assert.Equal(t, h.clock.Now().Add(time.Hour), *stored.ResetTokenExpiresAt)
	assert.Zero(t, stored.ResetAttempts)
}

func TestPasswordResetFlow_CooldownKeepsSingleToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedPrincipal(t, testEmail, testPassword)

	require.NoError(t, h.reset.Request(ctx, testEmail))
	h.clock.Advance(4 * time.Minute)
	require.NoError(t, h.reset.Request(ctx, testEmail))

	tokens := h.notifier.tokens("reset")
	require.Len(t, tokens, 1)
	assert.Equal(t, 1, h.metrics.reset[service.OutcomeSkipped])

	_, err := h.reset.Verify(ctx, tokens[0], false)
	require.NoError(t, err)

	require.NoError(t, h.reset.Consume(ctx, tokens[0], "N3w!Password"))

	err = h.reset.Consume(ctx, tokens[0], "An0ther!Password")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
}

func TestPasswordResetFlow_NewRequestAfterCooldownSupersedes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedPrincipal(t, testEmail, testPassword)

	require.NoError(t, h.reset.Request(ctx, testEmail))
	first := h.notifier.last(t, "reset")

	h.clock.Advance(5 * time.Minute)
	require.NoError(t, h.reset.Request(ctx, testEmail))
	second := h.notifier.last(t, "reset")
	require.NotEqual(t, first, second)

	_, err := h.reset.Verify(ctx, first, false)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)

	_, err = h.reset.Verify(ctx, second, false)
	assert.NoError(t, err)
}

func TestPasswordResetFlow_ExpiredTokenClearsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	principal := h.seedPrincipal(t, testEmail, testPassword)

	require.NoError(t, h.reset.Request(ctx, testEmail))
	raw := h.notifier.last(t, "reset")

	h.clock.Advance(time.Hour + time.Second)
	_, err := h.reset.Verify(ctx, raw, true)
	require.ErrorIs(t, err, domainerrors.ErrTokenExpired)

	stored := h.reload(t, principal.ID)
	assert.Empty(t, stored.ResetTokenHash)
	assert.Nil(t, stored.ResetTokenExpiresAt)

	_, err = h.reset.Verify(ctx, raw, false)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
}

func TestPasswordResetFlow_AttemptLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	principal := h.seedPrincipal(t, testEmail, testPassword)

	require.NoError(t, h.reset.Request(ctx, testEmail))
	raw := h.notifier.last(t, "reset")

	_, err := h.reset.Verify(ctx, raw, false)
	require.NoError(t, err)
	assert.Zero(t, h.reload(t, principal.ID).ResetAttempts)

	for i := 1; i <= 3; i++ {
		_, err := h.reset.Verify(ctx, raw, true)
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, i, h.reload(t, principal.ID).ResetAttempts)
	}

	_, err = h.reset.Verify(ctx, raw, true)
	require.ErrorIs(t, err, domainerrors.ErrInvalidToken)
	assert.False(t, h.reload(t, principal.ID).HasActiveReset())

	_, err = h.reset.Verify(ctx, raw, false)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
}

func TestPasswordResetFlow_ConsumeDoesNotSpendAnAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	principal := h.seedPrincipal(t, testEmail, testPassword)

	require.NoError(t, h.reset.Request(ctx, testEmail))
	raw := h.notifier.last(t, "reset")

	for i := 0; i < h.cfg.Auth.MaxResetAttempts; i++ {
		_, err := h.reset.Verify(ctx, raw, true)
		require.NoError(t, err)
	}

	require.NoError(t, h.reset.Consume(ctx, raw, "N3w!Password"))
	assert.False(t, h.reload(t, principal.ID).HasActiveReset())
}

func TestPasswordResetFlow_ConsumeRejectsWeakAndSamePasswords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	principal := h.seedPrincipal(t, testEmail, testPassword)

	require.NoError(t, h.reset.Request(ctx, testEmail))
	raw := h.notifier.last(t, "reset")

	err := h.reset.Consume(ctx, raw, "password")
	var weak *domainerrors.WeakPasswordError
	require.True(t, errors.As(err, &weak))
	assert.GreaterOrEqual(t, len(weak.Violations), 4)
	assert.Zero(t, h.reload(t, principal.ID).ResetAttempts)

	err = h.reset.Consume(ctx, raw, testPassword)
	require.ErrorIs(t, err, domainerrors.ErrSamePassword)
	assert.Zero(t, h.reload(t, principal.ID).ResetAttempts)
	assert.True(t, h.reload(t, principal.ID).HasActiveReset())
}

func TestPasswordResetFlow_ConsumeSetsPasswordAndEndsSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	principal := h.seedPrincipal(t, testEmail, testPassword)

	session, err := h.auth.Login(ctx, &usecase.LoginInput{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, h.reset.Request(ctx, testEmail))
	raw := h.notifier.last(t, "reset")

	const newPassword = "N3w!Password"
	require.NoError(t, h.reset.Consume(ctx, raw, newPassword))

	stored := h.reload(t, principal.ID)
	assert.False(t, stored.HasActiveReset())
	assert.Zero(t, stored.ResetAttempts)
	require.NotNil(t, stored.PasswordChangedAt)
	assert.Equal(t, h.clock.Now(), *stored.PasswordChangedAt)

	_, err = h.auth.Refresh(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrTokenRevoked)

	_, err = h.auth.Login(ctx, &usecase.LoginInput{Email: testEmail, Password: testPassword})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = h.auth.Login(ctx, &usecase.LoginInput{Email: testEmail, Password: newPassword})
	assert.NoError(t, err)
}

func TestPasswordResetFlow_NotifierFailureIsNotSurfaced(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")
	h.seedPrincipal(t, testEmail, testPassword)

	require.NoError(t, h.reset.Request(context.Background(), testEmail))
	assert.Equal(t, 1, h.metrics.reset[service.OutcomeFailure])
}

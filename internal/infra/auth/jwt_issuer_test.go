package auth

import (
	"strings"
	"testing"
	"time"

	"ideaboard/config"
	"ideaboard/internal/domain/entity"
	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/domain/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_access_secret_key_very_long_for_testing"

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestIssuer(t *testing.T, clock *fakeClock) service.TokenIssuer {
	t.Helper()

	cfg := &config.Config{Auth: &config.AuthConfig{Issuer: "ideaboard"}}
	cfg.SecretKey.Access = testSecret

	issuer, err := NewJWTIssuer(IssuerParams{Config: cfg, Clock: clock.Now})
	require.NoError(t, err)

	return issuer
}

func TestJWTIssuer_IssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	issuer := newTestIssuer(t, clock)
	subject := uuid.New()

	token, issued, err := issuer.Issue(subject, entity.RoleAdmin, 15*time.Minute)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)
	assert.NotEmpty(t, issued.TokenID)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.Equal(t, entity.RoleAdmin, claims.Role)
	assert.Equal(t, issued.TokenID, claims.TokenID)
	assert.WithinDuration(t, clock.now.Add(15*time.Minute), claims.ExpiresAt, time.Second)
}

func TestJWTIssuer_FreshJTIPerToken(t *testing.T) {
	issuer := newTestIssuer(t, &fakeClock{now: time.Now().UTC()})
	subject := uuid.New()

	_, first, err := issuer.Issue(subject, entity.RoleUser, time.Minute)
	require.NoError(t, err)
	_, second, err := issuer.Issue(subject, entity.RoleUser, time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, first.TokenID, second.TokenID)
}

func TestJWTIssuer_ZeroTTLFailsImmediately(t *testing.T) {
	issuer := newTestIssuer(t, &fakeClock{now: time.Now().UTC()})

	token, _, err := issuer.Issue(uuid.New(), entity.RoleUser, 0)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, domainerrors.ErrTokenExpired)
}

func TestJWTIssuer_ExpiresAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	issuer := newTestIssuer(t, clock)

	token, _, err := issuer.Issue(uuid.New(), entity.RoleUser, 15*time.Minute)
	require.NoError(t, err)

	clock.now = clock.now.Add(16 * time.Minute)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, domainerrors.ErrTokenExpired)
}

func TestJWTIssuer_RejectsOtherAlgorithms(t *testing.T) {
	issuer := newTestIssuer(t, &fakeClock{now: time.Now().UTC()})
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": "admin",
		"iss":  "ideaboard",
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
		"jti":  uuid.NewString(),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = issuer.Verify(hs512)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Verify(none)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
}

func TestJWTIssuer_RejectsTamperedAndForeignTokens(t *testing.T) {
	issuer := newTestIssuer(t, &fakeClock{now: time.Now().UTC()})

	token, _, err := issuer.Issue(uuid.New(), entity.RoleUser, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	otherCfg := &config.Config{Auth: &config.AuthConfig{Issuer: "ideaboard"}}
	otherCfg.SecretKey.Access = "another_secret"
	other, err := NewJWTIssuer(IssuerParams{Config: otherCfg})
	require.NoError(t, err)
	foreign, _, err := other.Issue(uuid.New(), entity.RoleUser, time.Minute)
	require.NoError(t, err)

	for name, candidate := range map[string]string{
		"malformed": "clearly-not-a-jwt-token-format",
		"tampered":  tampered,
		"foreign":   foreign,
	} {
		t.Run(name, func(t *testing.T) {
			claims, err := issuer.Verify(candidate)
			assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTIssuer_RequiresSecret(t *testing.T) {
	_, err := NewJWTIssuer(IssuerParams{Config: &config.Config{}})
	assert.Error(t, err)
}

package impl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ideaboard/config"
	"ideaboard/internal/domain/entity"
	"ideaboard/internal/domain/service"
	"ideaboard/internal/infra/auth"
	"ideaboard/internal/infra/persistence/memory"
	"ideaboard/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_access_secret_key_very_long_for_testing"

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SecretKey.Access = testSecret
	cfg.Store.Driver = config.StoreDriverMemory
	cfg.ApplyDefaults()

	return cfg
}

// testClock is a manually advanced clock safe for concurrent readers.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type sentEmail struct {
	kind     string
	to       string
	rawToken string
}

// recordingNotifier keeps every email it was asked to send.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (n *recordingNotifier) SendResetEmail(_ context.Context, to, rawToken, _ string) error {
	return n.record("reset", to, rawToken)
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, to, rawToken, _ string) error {
	return n.record("verification", to, rawToken)
}

func (n *recordingNotifier) record(kind, to, rawToken string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentEmail{kind: kind, to: to, rawToken: rawToken})

	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) tokens(kind string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []string
	for _, e := range n.sent {
		if e.kind == kind {
			out = append(out, e.rawToken)
		}
	}

	return out
}

func (n *recordingNotifier) last(t *testing.T, kind string) string {
	t.Helper()

	tokens := n.tokens(kind)
	require.NotEmpty(t, tokens, "no %s email sent", kind)

	return tokens[len(tokens)-1]
}

// countingMetrics tallies outcomes per event.
type countingMetrics struct {
	mu      sync.Mutex
	login   map[string]int
	refresh map[string]int
	reset   map[string]int
	locked  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		login:   map[string]int{},
		refresh: map[string]int{},
		reset:   map[string]int{},
	}
}

func (m *countingMetrics) LoginAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.login[outcome]++
}

func (m *countingMetrics) RefreshAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[outcome]++
}

func (m *countingMetrics) ResetRequested(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[outcome]++
}

func (m *countingMetrics) AccountLocked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked++
}

// harness wires every component against the in-memory store.
type harness struct {
	cfg          *config.Config
	store        *memory.Store
	clock        *testClock
	hasher       service.Hasher
	issuer       service.TokenIssuer
	notifier     *recordingNotifier
	metrics      *countingMetrics
	sessions     usecase.RefreshTokenStore
	throttle     usecase.LoginThrottle
	reset        usecase.PasswordResetFlow
	verification usecase.EmailVerificationUsecase
	auth         usecase.AuthUsecase
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := newTestConfig()
	store := memory.NewStore()
	clock := newTestClock()
	logger := newDiscardLogger()
	notifier := &recordingNotifier{}
	metrics := newCountingMetrics()
	hasher := auth.NewArgon2HasherWithParams(
		auth.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16},
		auth.NewPool(4),
	)
	generator := auth.NewTokenGenerator()

	issuer, err := auth.NewJWTIssuer(auth.IssuerParams{Config: cfg, Clock: clock.Now})
	require.NoError(t, err)

	h := &harness{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		hasher:   hasher,
		issuer:   issuer,
		notifier: notifier,
		metrics:  metrics,
	}

	h.sessions = NewRefreshTokenStore(RefreshTokenStoreParams{
		RefreshTokenRepo: store.RefreshTokenRepo(),
		Hasher:           hasher,
		Generator:        generator,
		Clock:            clock.Now,
		Logger:           logger,
	})
	h.throttle = NewLoginThrottle(LoginThrottleParams{
		TxManager: store,
		Config:    cfg,
		Metrics:   metrics,
		Clock:     clock.Now,
		Logger:    logger,
	})
	h.reset = NewPasswordResetFlow(PasswordResetFlowParams{
		TxManager:     store,
		PrincipalRepo: store.PrincipalRepo(),
		Hasher:        hasher,
		Generator:     generator,
		Notifier:      notifier,
		Config:        cfg,
		Metrics:       metrics,
		Clock:         clock.Now,
		Logger:        logger,
	})
	h.verification = NewEmailVerification(EmailVerificationParams{
		TxManager:     store,
		PrincipalRepo: store.PrincipalRepo(),
		Hasher:        hasher,
		Generator:     generator,
		Notifier:      notifier,
		Config:        cfg,
		Clock:         clock.Now,
		Logger:        logger,
	})
	h.auth = NewAuthService(AuthServiceParams{
		TxManager:         store,
		PrincipalRepo:     store.PrincipalRepo(),
		RefreshTokenStore: h.sessions,
		LoginThrottle:     h.throttle,
		EmailVerification: h.verification,
		Hasher:            hasher,
		TokenIssuer:       issuer,
		Config:            cfg,
		Metrics:           metrics,
		Clock:             clock.Now,
		Logger:            logger,
	})

	return h
}

// seedPrincipal stores a principal whose password is password.
func (h *harness) seedPrincipal(t *testing.T, email, password string) *entity.Principal {
	t.Helper()

	hash, err := h.hasher.HashPassword(context.Background(), password)
	require.NoError(t, err)

	principal := &entity.Principal{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		Role:         entity.RoleUser,
	}
	require.NoError(t, h.store.PrincipalRepo().Create(context.Background(), principal))

	return principal
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *entity.Principal {
	t.Helper()

	principal, err := h.store.PrincipalRepo().FindByID(context.Background(), id)
	require.NoError(t, err)

	return principal
}

// hookedHasher delegates to a real hasher, runs beforeHash once inside the first
// HashPassword call and counts VerifyPassword calls.
type hookedHasher struct {
	service.Hasher

	beforeHash func()
	hashOnce   sync.Once
	verifies   atomic.Int64
}

func (hh *hookedHasher) HashPassword(ctx context.Context, plain string) (string, error) {
	if hh.beforeHash != nil {
		hh.hashOnce.Do(hh.beforeHash)
	}

	return hh.Hasher.HashPassword(ctx, plain)
}

func (hh *hookedHasher) VerifyPassword(ctx context.Context, plain, encoded string) (bool, error) {
	hh.verifies.Add(1)

	return hh.Hasher.VerifyPassword(ctx, plain, encoded)
}

// authParams returns AuthService dependencies sharing the harness state.
func (h *harness) authParams() AuthServiceParams {
	return AuthServiceParams{
		TxManager:         h.store,
		PrincipalRepo:     h.store.PrincipalRepo(),
		RefreshTokenStore: h.sessions,
		LoginThrottle:     h.throttle,
		EmailVerification: h.verification,
		Hasher:            h.hasher,
		TokenIssuer:       h.issuer,
		Config:            h.cfg,
		Metrics:           h.metrics,
		Clock:             h.clock.Now,
		Logger:            newDiscardLogger(),
	}
}

func (h *harness) authWith(hasher service.Hasher) usecase.AuthUsecase {
	params := h.authParams()
	params.Hasher = hasher

	return NewAuthService(params)
}

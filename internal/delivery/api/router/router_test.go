package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ideaboard/config"
	apimiddleware "ideaboard/internal/delivery/api/middleware"
	"ideaboard/internal/delivery/api/router/handler"
	"ideaboard/internal/delivery/api/validator"
	"ideaboard/internal/delivery/middleware"
	"ideaboard/internal/domain/entity"
	"ideaboard/internal/infra/auth"
	"ideaboard/internal/infra/metrics"
	"ideaboard/internal/infra/persistence/memory"
	"ideaboard/internal/usecase/impl"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "Str0ng!Pass"
)

type mailbox struct {
	mu     sync.Mutex
	resets []string
	verify []string
}

func (m *mailbox) SendResetEmail(_ context.Context, _, rawToken, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, rawToken)

	return nil
}

func (m *mailbox) SendVerificationEmail(_ context.Context, _, rawToken, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify = append(m.verify, rawToken)

	return nil
}

func (m *mailbox) Close() error { return nil }

func (m *mailbox) lastReset() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.resets) == 0 {
		return ""
	}

	return m.resets[len(m.resets)-1]
}

func (m *mailbox) lastVerification() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.verify) == 0 {
		return ""
	}

	return m.verify[len(m.verify)-1]
}

type testEnv struct {
	echo  *echo.Echo
	store *memory.Store
	mail  *mailbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.SecretKey.Access = "test_access_secret_key_very_long_for_testing"
	cfg.Store.Driver = config.StoreDriverMemory
	cfg.ApplyDefaults()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	mail := &mailbox{}
	registry := metrics.NewRegistry()
	authMetrics := metrics.AsService(metrics.NewAuthMetrics(registry))
	hasher := auth.NewArgon2HasherWithParams(
		auth.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16},
		auth.NewPool(4),
	)
	generator := auth.NewTokenGenerator()
	issuer, err := auth.NewJWTIssuer(auth.IssuerParams{Config: cfg})
	require.NoError(t, err)

	sessions := impl.NewRefreshTokenStore(impl.RefreshTokenStoreParams{
		RefreshTokenRepo: store.RefreshTokenRepo(),
		Hasher:           hasher,
		Generator:        generator,
		Logger:           logger,
	})
	throttle := impl.NewLoginThrottle(impl.LoginThrottleParams{
		TxManager: store,
		Config:    cfg,
		Metrics:   authMetrics,
		Logger:    logger,
	})
	resetFlow := impl.NewPasswordResetFlow(impl.PasswordResetFlowParams{
		TxManager:     store,
		PrincipalRepo: store.PrincipalRepo(),
		Hasher:        hasher,
		Generator:     generator,
		Notifier:      mail,
		Config:        cfg,
		Metrics:       authMetrics,
		Logger:        logger,
	})
	verification := impl.NewEmailVerification(impl.EmailVerificationParams{
		TxManager:     store,
		PrincipalRepo: store.PrincipalRepo(),
		Hasher:        hasher,
		Generator:     generator,
		Notifier:      mail,
		Config:        cfg,
		Logger:        logger,
	})
	authUC := impl.NewAuthService(impl.AuthServiceParams{
		TxManager:         store,
		PrincipalRepo:     store.PrincipalRepo(),
		RefreshTokenStore: sessions,
		LoginThrottle:     throttle,
		EmailVerification: verification,
		Hasher:            hasher,
		TokenIssuer:       issuer,
		Config:            cfg,
		Metrics:           authMetrics,
		Logger:            logger,
	})

	e := echo.New()
	e.Validator = validator.New()
	e.HTTPErrorHandler = apimiddleware.NewErrorMiddleware(logger).HandleHTTPError
	e.Use(middleware.NewRequestIDMiddleware(logger).Process)

	NewRouter(RouterParams{
		AuthHandler:     handler.NewAuthHandler(handler.AuthHandlerParams{AuthUC: authUC, Logger: logger}),
		PasswordHandler: handler.NewPasswordHandler(handler.PasswordHandlerParams{AuthUC: authUC, ResetFlow: resetFlow, Logger: logger}),
		AccountHandler:  handler.NewAccountHandler(handler.AccountHandlerParams{AuthUC: authUC, Verification: verification, Logger: logger}),
		AuthMiddleware:  apimiddleware.NewAuthMiddleware(apimiddleware.AuthMiddlewareParams{TokenIssuer: issuer}),
		Registry:        registry,
		Config:          cfg,
	}).RegisterRoutes(e)

	return &testEnv{echo: e, store: store, mail: mail}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func (env *testEnv) do(t *testing.T, method, path, body, bearer string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	var out envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}

	return rec, out
}

func (env *testEnv) register(t *testing.T, email string) handler.TokenResponse {
	t.Helper()

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/register",
		`{"name":"Alice","email":"`+email+`","password":"`+testPassword+`"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var tokens handler.TokenResponse
	require.NoError(t, json.Unmarshal(body.Data, &tokens))

	return tokens
}

func loginBody(email, password string) string {
	return `{"email":"` + email + `","password":"` + password + `"}`
}

func TestRouter_RegisterLoginAndMe(t *testing.T) {
	env := newTestEnv(t)

	tokens := env.register(t, "Alice@Example.com")
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Positive(t, tokens.ExpiresIn)
	require.NotNil(t, tokens.Principal)
	assert.Equal(t, testEmail, tokens.Principal.Email)

	rec, body := env.do(t, http.MethodGet, "/api/v1/me", "", tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body.Meta.RequestID)
	assert.NotContains(t, rec.Body.String(), "password")

	var me handler.PrincipalResponse
	require.NoError(t, json.Unmarshal(body.Data, &me))
	assert.Equal(t, testEmail, me.Email)
	assert.Equal(t, "user", me.Role)
	assert.False(t, me.EmailVerified)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody(testEmail, testPassword), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RegisterRejectsDuplicateAndWeakPasswords(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/register",
		`{"name":"Alice","email":"ALICE@example.com","password":"`+testPassword+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "EMAIL_TAKEN", body.Error.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/register",
		`{"name":"Bob","email":"bob@example.com","password":"short"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "WEAK_PASSWORD", body.Error.Code)
	assert.NotEmpty(t, body.Error.Details)

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/register", `{"name":"Bob","email":"not-an-email"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
}

func TestRouter_LoginDoesNotRevealUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail)

	wrongRec, wrong := env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody(testEmail, "Wr0ng!Pass"), "")
	unknownRec, unknown := env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("nobody@example.com", testPassword), "")

	assert.Equal(t, http.StatusUnauthorized, wrongRec.Code)
	assert.Equal(t, wrongRec.Code, unknownRec.Code)
	require.NotNil(t, wrong.Error)
	require.NotNil(t, unknown.Error)
	assert.Equal(t, wrong.Error.Code, unknown.Error.Code)
	assert.Equal(t, wrong.Error.Message, unknown.Error.Message)
}

func TestRouter_LoginIsRateLimitedPerIP(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("nobody@example.com", testPassword), "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("nobody@example.com", testPassword), "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)

	// Other routes keep their own budget.
	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/forgot-password", `{"email":"nobody@example.com"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RefreshRotatesAndRejectsReuse(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.register(t, testEmail)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+tokens.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated handler.TokenResponse
	require.NoError(t, json.Unmarshal(body.Data, &rotated))
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+tokens.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, body.Error)
	assert.Contains(t, []string{"TOKEN_REVOKED", "TOKEN_NOT_FOUND"}, body.Error.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/logout", `{"refresh_token":"`+rotated.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+rotated.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_LogoutAllRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.register(t, testEmail)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/logout-all", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/logout-all", "", tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]int64
	require.NoError(t, json.Unmarshal(body.Data, &out))
	assert.Equal(t, int64(1), out["revoked_sessions"])
}

func TestRouter_PasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.register(t, testEmail)

	knownRec, known := env.do(t, http.MethodPost, "/api/v1/auth/forgot-password", `{"email":"`+testEmail+`"}`, "")
	unknownRec, unknown := env.do(t, http.MethodPost, "/api/v1/auth/forgot-password", `{"email":"nobody@example.com"}`, "")
	assert.Equal(t, http.StatusOK, knownRec.Code)
	assert.Equal(t, knownRec.Code, unknownRec.Code)
	assert.JSONEq(t, string(known.Data), string(unknown.Data))

	raw := env.mail.lastReset()
	require.NotEmpty(t, raw)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/auth/reset-password/verify?token="+raw, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/reset-password",
		`{"token":"`+raw+`","new_password":"`+testPassword+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "SAME_PASSWORD", body.Error.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/reset-password",
		`{"token":"`+raw+`","new_password":"N3w!Passw0rd"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/reset-password",
		`{"token":"`+raw+`","new_password":"An0ther!Pass"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+tokens.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody(testEmail, "N3w!Passw0rd"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_VerifyResetTokenRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/auth/reset-password/verify", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "INVALID_TOKEN", body.Error.Code)
}

func TestRouter_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.register(t, testEmail)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/change-password",
		`{"current_password":"Wr0ng!Pass","new_password":"N3w!Passw0rd"}`, tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", body.Error.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/change-password",
		`{"current_password":"`+testPassword+`","new_password":"N3w!Passw0rd"}`, tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody(testEmail, "N3w!Passw0rd"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_EmailVerification(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.register(t, testEmail)

	raw := env.mail.lastVerification()
	require.NotEmpty(t, raw)

	rec, body := env.do(t, http.MethodPost, "/api/v1/auth/verify-email", `{"token":"`+raw+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var verified handler.PrincipalResponse
	require.NoError(t, json.Unmarshal(body.Data, &verified))
	assert.True(t, verified.EmailVerified)
	assert.NotNil(t, verified.EmailVerifiedAt)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/verify-email", `{"token":"`+raw+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/auth/resend-verification", `{"email":"`+testEmail+`"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, env.mail.lastVerification())

	rec, body = env.do(t, http.MethodGet, "/api/v1/me", "", tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var me handler.PrincipalResponse
	require.NoError(t, json.Unmarshal(body.Data, &me))
	assert.True(t, me.EmailVerified)
}

func TestRouter_AdminUnlock(t *testing.T) {
	env := newTestEnv(t)
	victim := env.register(t, testEmail)
	for i := 0; i < 5; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody(testEmail, "Wr0ng!Pass"), "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	path := "/api/v1/admin/principals/" + victim.Principal.ID.String() + "/unlock"

	rec, body := env.do(t, http.MethodPost, path, "", victim.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)

	admin := env.register(t, "root@example.com")
	principal, err := env.store.PrincipalRepo().FindByID(context.Background(), admin.Principal.ID)
	require.NoError(t, err)
	principal.Role = entity.RoleAdmin
	require.NoError(t, env.store.PrincipalRepo().Save(context.Background(), principal))

	// The role is read from the access token, so sign in again.
	rec, body = env.do(t, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+admin.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var adminTokens handler.TokenResponse
	require.NoError(t, json.Unmarshal(body.Data, &adminTokens))

	rec, _ = env.do(t, http.MethodPost, path, "", adminTokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	unlocked, err := env.store.PrincipalRepo().FindByID(context.Background(), victim.Principal.ID)
	require.NoError(t, err)
	assert.Zero(t, unlocked.FailedLoginCount)

	rec, body = env.do(t, http.MethodPost, "/api/v1/admin/principals/not-a-uuid/unlock", "", adminTokens.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "PRINCIPAL_NOT_FOUND", body.Error.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.do(t, http.MethodPost, "/api/v1/auth/login", loginBody("nobody@example.com", testPassword), "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	env.echo.ServeHTTP(metricsRec, req)
	assert.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), "auth_login_attempts_total")
}

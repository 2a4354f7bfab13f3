package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ideaboard/config"
	deliverycontext "ideaboard/internal/delivery/context"
	"ideaboard/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	cfg := &config.Config{FrontendURL: "https://ideas.example.com/"}
	cfg.SecretKey.Access = "secret"
	cfg.Store.Driver = config.StoreDriverMemory
	cfg.ApplyDefaults()
	cfg.Notifier.MinBackoff = time.Millisecond
	cfg.Notifier.MaxBackoff = 5 * time.Millisecond

	return cfg
}

// recordingTransport fails the first failures sends, then records messages
type recordingTransport struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []*EmailMessage
	closed   bool
}

func (t *recordingTransport) Send(_ context.Context, msg *EmailMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	if t.calls <= t.failures {
		return errors.New("smtp unavailable")
	}
	t.sent = append(t.sent, msg)

	return nil
}

func (t *recordingTransport) Close() error {
	t.closed = true

	return nil
}

func TestEmailNotifier_SendResetEmail(t *testing.T) {
	transport := &recordingTransport{}
	notifier := NewEmailNotifier(newTestConfig(), transport, newDiscardLogger())

	ctx := deliverycontext.WithRequestID(context.Background(), "req-1")
	require.NoError(t, notifier.SendResetEmail(ctx, "ada@example.com", "raw+token/", "<Ada>"))

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, KindPasswordReset, msg.Kind)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "req-1", msg.RequestID)
	assert.Contains(t, msg.HTML, "https://ideas.example.com/auth/reset-password?token=raw%2Btoken%2F")
	assert.Contains(t, msg.HTML, "&lt;Ada&gt;")
	assert.Contains(t, msg.HTML, "1 hour")
}

func TestEmailNotifier_SendVerificationEmail(t *testing.T) {
	transport := &recordingTransport{}
	notifier := NewEmailNotifier(newTestConfig(), transport, newDiscardLogger())

	require.NoError(t, notifier.SendVerificationEmail(context.Background(), "ada@example.com", "abc", "Ada"))

	require.Len(t, transport.sent, 1)
	assert.Equal(t, KindEmailVerification, transport.sent[0].Kind)
	assert.Contains(t, transport.sent[0].HTML, "https://ideas.example.com/auth/verify-email?token=abc")
	assert.Contains(t, transport.sent[0].HTML, "24 hours")
}

func TestEmailNotifier_RetriesTransientFailures(t *testing.T) {
	transport := &recordingTransport{failures: 2}
	notifier := NewEmailNotifier(newTestConfig(), transport, newDiscardLogger())

	require.NoError(t, notifier.SendResetEmail(context.Background(), "ada@example.com", "tok", "Ada"))
	assert.Equal(t, 3, transport.calls)
	assert.Len(t, transport.sent, 1)
}

func TestEmailNotifier_GivesUpAfterMaxAttempts(t *testing.T) {
	transport := &recordingTransport{failures: 10}
	notifier := NewEmailNotifier(newTestConfig(), transport, newDiscardLogger())

	err := notifier.SendResetEmail(context.Background(), "ada@example.com", "tok", "Ada")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp unavailable")
	assert.Equal(t, 3, transport.calls)

	require.NoError(t, notifier.Close())
	assert.True(t, transport.closed)
}

func TestLocalHTTPTransport_PostsPushEnvelope(t *testing.T) {
	var got PushMessage
	var requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get(deliverycontext.HeaderXRequestID)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	transport := NewLocalHTTPTransport(server.URL, newDiscardLogger())
	msg := &EmailMessage{MessageID: "m-1", RequestID: "req-9", Kind: KindPasswordReset, To: "ada@example.com", HTML: "<p>hi</p>"}

	require.NoError(t, transport.Send(context.Background(), msg))

	assert.Equal(t, "req-9", requestID)
	assert.Equal(t, "m-1", got.Message.MessageID)
	assert.Equal(t, KindPasswordReset, got.Message.Attributes["kind"])

	data, err := base64.StdEncoding.DecodeString(got.Message.Data)
	require.NoError(t, err)
	var decoded EmailMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *msg, decoded)
}

func TestLocalHTTPTransport_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := NewLocalHTTPTransport(server.URL, newDiscardLogger())
	err := transport.Send(context.Background(), &EmailMessage{MessageID: "m-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
	assert.Equal(t, "24 hours", humanDuration(24*time.Hour))
	assert.Equal(t, "30 minutes", humanDuration(30*time.Minute))
	assert.Equal(t, "1m30s", humanDuration(90*time.Second))
}

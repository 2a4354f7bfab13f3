package notifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	deliverycontext "ideaboard/internal/delivery/context"

	"github.com/pkg/errors"
)

// localHTTPTransport POSTs messages to a local endpoint in Pub/Sub push format,
// so a development mail worker can treat it like a real subscription.
type localHTTPTransport struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// PushMessage mirrors the envelope Google Pub/Sub uses when pushing to HTTP endpoints
type PushMessage struct {
	Message struct {
		Data        string            `json:"data"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// NewLocalHTTPTransport creates a transport posting to endpoint
func NewLocalHTTPTransport(endpoint string, logger *slog.Logger) Transport {
	return &localHTTPTransport{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (t *localHTTPTransport) Send(ctx context.Context, msg *EmailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WithStack(err)
	}

	push := PushMessage{
		Subscription: "projects/local/subscriptions/account-email-sub",
	}
	push.Message.Data = base64.StdEncoding.EncodeToString(data)
	push.Message.MessageID = msg.MessageID
	push.Message.PublishTime = time.Now().UTC().Format(time.RFC3339)
	push.Message.Attributes = messageAttributes(msg)

	body, err := json.Marshal(push)
	if err != nil {
		return errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.RequestID != "" {
		req.Header.Set(deliverycontext.HeaderXRequestID, msg.RequestID)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("mail endpoint returned non-success status: %d", resp.StatusCode)
	}

	t.logger.DebugContext(ctx, "[LocalNotifier] Email posted",
		slog.String("endpoint", t.endpoint),
		slog.String("message_id", msg.MessageID),
	)

	return nil
}

func (t *localHTTPTransport) Close() error {
	return nil
}

func messageAttributes(msg *EmailMessage) map[string]string {
	attributes := map[string]string{
		"kind":       msg.Kind,
		"message_id": msg.MessageID,
	}
	if msg.RequestID != "" {
		attributes["request_id"] = msg.RequestID
	}

	return attributes
}

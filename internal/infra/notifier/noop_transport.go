package notifier

import (
	"context"
	"log/slog"
)

// noopTransport drops emails; used when no delivery is configured.
type noopTransport struct {
	logger *slog.Logger
}

func (t *noopTransport) Send(ctx context.Context, msg *EmailMessage) error {
	t.logger.DebugContext(ctx, "[NoopNotifier] Email delivery disabled, skipping",
		slog.String("kind", msg.Kind),
		slog.String("message_id", msg.MessageID),
	)

	return nil
}

func (t *noopTransport) Close() error {
	return nil
}

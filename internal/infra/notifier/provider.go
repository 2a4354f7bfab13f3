package notifier

import (
	"context"
	"log/slog"

	"ideaboard/config"
	"ideaboard/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Params holds dependencies for the Notifier, injected by Fx
type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

// New creates a Notifier whose transport is chosen by configuration
func New(params Params) (service.Notifier, error) {
	cfg := params.Config.Notifier
	logger := params.Logger

	var transport Transport
	var err error

	switch cfg.Provider {
	case config.NotifierProviderNoop, "":
		logger.Info("Notifier not configured, emails are dropped")

		transport = &noopTransport{logger: logger}

	case config.NotifierProviderLocalHTTP:
		if cfg.Endpoint == "" {
			return nil, errors.New("endpoint is required for local_http notifier")
		}
		logger.Info("Using local HTTP notifier", slog.String("endpoint", cfg.Endpoint))

		transport = NewLocalHTTPTransport(cfg.Endpoint, logger)

	case config.NotifierProviderGooglePubSub:
		if cfg.ProjectID == "" {
			return nil, errors.New("project ID is required for google_pubsub notifier")
		}
		if cfg.TopicID == "" {
			return nil, errors.New("topic ID is required for google_pubsub notifier")
		}

		transport, err = NewGooglePubSubTransport(params.Ctx, cfg.ProjectID, cfg.TopicID, logger)
		if err != nil {
			return nil, err
		}

	default:
		return nil, errors.Errorf("unknown notifier provider: %s", cfg.Provider)
	}

	notifier := NewEmailNotifier(params.Config, transport, logger)

	params.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing Notifier")

			return notifier.Close()
		},
	})

	return notifier, nil
}

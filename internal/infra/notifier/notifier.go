package notifier

import (
	"context"
	"log/slog"
	"time"

	"ideaboard/config"
	"ideaboard/internal/domain/service"
	"ideaboard/internal/errors"

	"github.com/sethvargo/go-retry"
)

const (
	resetPath       = "/auth/reset-password"
	verifyEmailPath = "/auth/verify-email"
	resetSubject    = "Reset your password"
	verifySubject   = "Verify your email address"
	resetTemplate   = "reset_password.html"
	verifyTemplate  = "verify_email.html"
	defaultFrontend = "http://localhost:3000"
)

// Transport moves a rendered email to whatever performs delivery.
type Transport interface {
	Send(ctx context.Context, msg *EmailMessage) error
	Close() error
}

// RetryPolicy is an exponential backoff bounded by attempts and a maximum delay.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// emailNotifier implements service.Notifier on top of a Transport.
type emailNotifier struct {
	transport Transport
	links     linkBuilder
	retry     RetryPolicy
	resetTTL  time.Duration
	verifyTTL time.Duration
	logger    *slog.Logger
}

// NewEmailNotifier wraps a transport with templating and retries.
func NewEmailNotifier(cfg *config.Config, transport Transport, logger *slog.Logger) service.Notifier {
	frontend := cfg.FrontendURL
	if frontend == "" {
		frontend = defaultFrontend
	}

	return &emailNotifier{
		transport: transport,
		links:     linkBuilder{base: frontend},
		retry: RetryPolicy{
			MaxAttempts: cfg.Notifier.MaxAttempts,
			MinBackoff:  cfg.Notifier.MinBackoff,
			MaxBackoff:  cfg.Notifier.MaxBackoff,
		},
		resetTTL:  cfg.Auth.ResetTokenTTL,
		verifyTTL: cfg.Auth.VerificationTokenTTL,
		logger:    logger,
	}
}

// SendResetEmail renders the reset email and sends it with retries.
func (n *emailNotifier) SendResetEmail(ctx context.Context, to, rawToken, name string) error {
	msg, err := renderEmail(ctx, KindPasswordReset, to, resetSubject, resetTemplate, templateData{
		Name:      name,
		Link:      n.links.build(resetPath, rawToken),
		ExpiresIn: humanDuration(n.resetTTL),
	})
	if err != nil {
		return err
	}

	return n.send(ctx, msg)
}

// SendVerificationEmail renders the verification email and sends it with retries.
func (n *emailNotifier) SendVerificationEmail(ctx context.Context, to, rawToken, name string) error {
	msg, err := renderEmail(ctx, KindEmailVerification, to, verifySubject, verifyTemplate, templateData{
		Name:      name,
		Link:      n.links.build(verifyEmailPath, rawToken),
		ExpiresIn: humanDuration(n.verifyTTL),
	})
	if err != nil {
		return err
	}

	return n.send(ctx, msg)
}

func (n *emailNotifier) Close() error {
	return n.transport.Close()
}

func (n *emailNotifier) send(ctx context.Context, msg *EmailMessage) error {
	attempts := max(n.retry.MaxAttempts, 1)
	backoff := retry.NewExponential(max(n.retry.MinBackoff, time.Millisecond))
	if n.retry.MaxBackoff > 0 {
		backoff = retry.WithCappedDuration(n.retry.MaxBackoff, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := n.transport.Send(ctx, msg); err != nil {
			n.logger.WarnContext(ctx, "Email delivery attempt failed",
				slog.String("kind", msg.Kind),
				slog.String("message_id", msg.MessageID),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)

			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "send %s email after %d attempts", msg.Kind, attempt)
	}

	n.logger.InfoContext(ctx, "Email dispatched",
		slog.String("kind", msg.Kind),
		slog.String("message_id", msg.MessageID),
	)

	return nil
}

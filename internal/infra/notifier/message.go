// Package notifier dispatches account emails over a pluggable transport.
package notifier

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	deliverycontext "ideaboard/internal/delivery/context"
	"ideaboard/internal/errors"

	"github.com/google/uuid"
)

// Email kinds, also used as a message attribute for subscribers.
const (
	KindPasswordReset     = "password_reset"
	KindEmailVerification = "email_verification"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// EmailMessage is the payload handed to a transport. HTML carries the raw token and must never be logged.
type EmailMessage struct {
	MessageID string `json:"messageId"`
	RequestID string `json:"requestId,omitempty"`
	Kind      string `json:"kind"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
}

type templateData struct {
	Name      string
	Link      string
	ExpiresIn string
}

// linkBuilder builds frontend links embedding a raw token.
type linkBuilder struct {
	base string
}

func (b linkBuilder) build(path, rawToken string) string {
	return strings.TrimRight(b.base, "/") + path + "?token=" + url.QueryEscape(rawToken)
}

func renderEmail(ctx context.Context, kind, to, subject, tmpl string, data templateData) (*EmailMessage, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return nil, errors.Wrapf(err, "render %s", tmpl)
	}

	return &EmailMessage{
		MessageID: uuid.NewString(),
		RequestID: requestIDFromContext(ctx),
		Kind:      kind,
		To:        to,
		Subject:   subject,
		HTML:      body.String(),
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}

func requestIDFromContext(ctx context.Context) string {
	return deliverycontext.GetRequestIDFromContext(ctx)
}

// Package notify delivers unreplied-email summaries to the notification platform.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bassamadnan/mailreminder/backoff"
	"github.com/bassamadnan/mailreminder/gmail"
	"github.com/go-resty/resty/v2"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const (
	webhookMaxConnections = 10
	retryBase             = 500 * time.Millisecond
	retryCap              = 10 * time.Second
)

// Payload is the webhook body.
type Payload struct {
	Message   string                 `json:"message"`
	Emails    []gmail.UnrepliedEmail `json:"emails"`
	Username  string                 `json:"username"`
	EventName string                 `json:"event_name"`
	Status    string                 `json:"status"`
}

// Notifier sends a payload somewhere.
type Notifier interface {
	Notify(ctx context.Context, payload Payload) error
}

// Template holds the fixed fields of every payload.
type Template struct {
	Username  string
	EventName string
	Status    string
}

// Build makes the payload for a snapshot.
func (t Template) Build(emails []gmail.UnrepliedEmail) Payload {
	return Payload{
		Message:   fmt.Sprintf("You have %d unreplied emails.", len(emails)),
		Emails:    emails,
		Username:  t.Username,
		EventName: t.EventName,
		Status:    t.Status,
	}
}

// Discard drops every payload. It stands in when no webhook is configured.
type Discard struct{}

func (Discard) Notify(context.Context, Payload) error { return nil }

// WebhookConfig configures a Webhook.
type WebhookConfig struct {
	URL         string
	Timeout     time.Duration
	MaxAttempts int
	// Clock drives the retry backoff. Defaults to the real clock.
	Clock clockwork.Clock
}

// Webhook POSTs payloads as JSON, retrying failed deliveries with backoff.
type Webhook struct {
	client      *resty.Client
	url         string
	maxAttempts int
	clock       clockwork.Clock
}

func NewWebhook(conf WebhookConfig) (*Webhook, error) {
	if conf.URL == "" {
		return nil, trace.BadParameter("missing webhook URL")
	}
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = 1
	}
	if conf.Clock == nil {
		conf.Clock = clockwork.NewRealClock()
	}
	client := resty.
		NewWithClient(&http.Client{
			Timeout: conf.Timeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     webhookMaxConnections,
				MaxIdleConnsPerHost: webhookMaxConnections,
			},
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Webhook{
		client:      client,
		url:         conf.URL,
		maxAttempts: conf.MaxAttempts,
		clock:       conf.Clock,
	}, nil
}

// Notify delivers payload. Any non-2xx response counts as a failed attempt.
func (w *Webhook) Notify(ctx context.Context, payload Payload) error {
	retry := backoff.Decorr(retryBase, retryCap, w.clock)
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = w.send(ctx, payload); err == nil {
			log.WithField("count", len(payload.Emails)).Info("Successfully posted to the webhook")
			return nil
		}
		log := log.WithError(err).WithField("attempt", attempt)
		if attempt == w.maxAttempts {
			log.Error("Webhook delivery failed, giving up")
			break
		}
		log.Warn("Webhook delivery failed, retrying")
		if berr := retry.Do(ctx); berr != nil {
			return trace.Wrap(berr)
		}
	}
	return trace.Wrap(err)
}

func (w *Webhook) send(ctx context.Context, payload Payload) error {
	resp, err := w.client.NewRequest().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return trace.ConnectionProblem(err, "failed to send the webhook request: %v", err)
	}
	if !resp.IsSuccess() {
		return trace.ConnectionProblem(nil, "webhook request returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

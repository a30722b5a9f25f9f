// Package webhook forwards the raw event payload to a configured HTTP
// endpoint. The event is posted as-is; no row transformation is applied, the
// receiver sees what the producer sent.
package webhook

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/maccman/opentrack-sub000/pkg/clients"
	"github.com/maccman/opentrack-sub000/pkg/events"
	"github.com/maccman/opentrack-sub000/pkg/logger"
	"github.com/maccman/opentrack-sub000/pkg/metrics"
	"github.com/maccman/opentrack-sub000/pkg/retry"
)

// Name is the registry name of this destination
const Name = "webhook"

// SecretHeader carries the shared secret so the receiver can authenticate
// the sender.
const SecretHeader = "X-Opentrack-Secret"

// maxBackoff caps retry delays for webhook posts
const maxBackoff = 16 * time.Second

// Destination posts events to one webhook URL
type Destination struct {
	url    string
	secret string
	client *clients.HTTPClient
	policy *retry.Policy
	logger *zap.Logger
}

// New creates a webhook destination
func New(url, secret string, client *clients.HTTPClient, policy *retry.Policy) *Destination {
	log := logger.With(zap.String("integration", Name))

	policy = policy.Clone()
	if policy.MaxDelay > maxBackoff {
		policy.MaxDelay = maxBackoff
	}
	policy.OnRetry = func(attempt int, err error) {
		metrics.RetryAttempts.WithLabelValues(Name).Inc()
		log.Warn("retrying webhook post",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return &Destination{
		url:    url,
		secret: secret,
		client: client,
		policy: policy,
		logger: log,
	}
}

// Name returns the registry name
func (d *Destination) Name() string { return Name }

func (d *Destination) Track(ctx context.Context, e *events.Event) error {
	return d.post(ctx, e)
}

func (d *Destination) Identify(ctx context.Context, e *events.Event) error {
	return d.post(ctx, e)
}

func (d *Destination) Page(ctx context.Context, e *events.Event) error {
	return d.post(ctx, e)
}

func (d *Destination) Group(ctx context.Context, e *events.Event) error {
	return d.post(ctx, e)
}

func (d *Destination) Alias(ctx context.Context, e *events.Event) error {
	return d.post(ctx, e)
}

func (d *Destination) post(ctx context.Context, e *events.Event) error {
	headers := map[string]string{}
	if d.secret != "" {
		headers[SecretHeader] = d.secret
	}

	return d.policy.Execute(ctx, func() error {
		return d.client.DoJSON(ctx, http.MethodPost, d.url, headers, e, nil)
	})
}

// Package crm forwards events to a REST CRM API. Identify and group calls
// upsert contacts and companies; track and page calls create activity
// records; alias calls link two identities. The CRM owns merge semantics, the
// adapter only shapes and sends requests.
package crm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maccman/opentrack-sub000/pkg/clients"
	"github.com/maccman/opentrack-sub000/pkg/events"
	"github.com/maccman/opentrack-sub000/pkg/logger"
	"github.com/maccman/opentrack-sub000/pkg/metrics"
	"github.com/maccman/opentrack-sub000/pkg/retry"
)

// Name is the registry name of this destination
const Name = "crm"

// maxBackoff caps retry delays for CRM calls
const maxBackoff = 16 * time.Second

// Destination delivers events to a CRM REST API
type Destination struct {
	baseURL string
	apiKey  string
	client  *clients.HTTPClient
	policy  *retry.Policy
	logger  *zap.Logger
}

// New creates a CRM destination. baseURL is the API root without a trailing
// slash, e.g. https://api.example-crm.com/v1.
func New(baseURL, apiKey string, client *clients.HTTPClient, policy *retry.Policy) *Destination {
	log := logger.With(zap.String("integration", Name))

	policy = policy.Clone()
	if policy.MaxDelay > maxBackoff {
		policy.MaxDelay = maxBackoff
	}
	policy.OnRetry = func(attempt int, err error) {
		metrics.RetryAttempts.WithLabelValues(Name).Inc()
		log.Warn("retrying CRM call",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return &Destination{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		policy:  policy,
		logger:  log,
	}
}

// Name returns the registry name
func (d *Destination) Name() string { return Name }

// Track creates an activity record for the event
func (d *Destination) Track(ctx context.Context, e *events.Event) error {
	return d.send(ctx, http.MethodPost, "/events", map[string]interface{}{
		"event_id":     e.MessageID,
		"name":         e.Event,
		"user_id":      e.UserID,
		"anonymous_id": e.AnonymousID,
		"properties":   e.Properties,
		"timestamp":    timestamp(e),
	})
}

// Identify upserts the contact keyed by user id
func (d *Destination) Identify(ctx context.Context, e *events.Event) error {
	return d.send(ctx, http.MethodPut, "/contacts", map[string]interface{}{
		"user_id":      e.UserID,
		"anonymous_id": e.AnonymousID,
		"traits":       e.Traits,
		"timestamp":    timestamp(e),
	})
}

// Page creates a page-view activity record
func (d *Destination) Page(ctx context.Context, e *events.Event) error {
	return d.send(ctx, http.MethodPost, "/events", map[string]interface{}{
		"event_id":     e.MessageID,
		"name":         "Page Viewed",
		"page":         e.Name,
		"user_id":      e.UserID,
		"anonymous_id": e.AnonymousID,
		"properties":   e.Properties,
		"timestamp":    timestamp(e),
	})
}

// Group upserts the company and associates the user with it
func (d *Destination) Group(ctx context.Context, e *events.Event) error {
	return d.send(ctx, http.MethodPut, "/companies", map[string]interface{}{
		"group_id":     e.GroupID,
		"user_id":      e.UserID,
		"anonymous_id": e.AnonymousID,
		"traits":       e.Traits,
		"timestamp":    timestamp(e),
	})
}

// Alias links the previous identity to the user id
func (d *Destination) Alias(ctx context.Context, e *events.Event) error {
	return d.send(ctx, http.MethodPost, "/aliases", map[string]interface{}{
		"user_id":     e.UserID,
		"previous_id": e.PreviousID,
		"timestamp":   timestamp(e),
	})
}

func (d *Destination) send(ctx context.Context, method, path string, body map[string]interface{}) error {
	headers := map[string]string{
		"Authorization": "Bearer " + d.apiKey,
	}

	return d.policy.Execute(ctx, func() error {
		return d.client.DoJSON(ctx, method, d.baseURL+path, headers, body, nil)
	})
}

// timestamp returns the producer timestamp when set, empty otherwise. The
// CRM stamps receipt time itself for events without one.
func timestamp(e *events.Event) string {
	if e.Timestamp.IsZero() {
		return ""
	}
	return e.Timestamp.UTC().Format(time.RFC3339Nano)
}

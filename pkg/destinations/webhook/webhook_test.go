package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maccman/opentrack-sub000/pkg/clients"
	"github.com/maccman/opentrack-sub000/pkg/errors"
	"github.com/maccman/opentrack-sub000/pkg/events"
	"github.com/maccman/opentrack-sub000/pkg/logger"
	"github.com/maccman/opentrack-sub000/pkg/retry"
)

func fastPolicy(attempts int) *retry.Policy {
	return retry.NewPolicy(attempts, time.Millisecond, 10*time.Millisecond)
}

func newTestDestination(url string, attempts int) *Destination {
	client := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
	return New(url, "s3cret", client, fastPolicy(attempts))
}

func trackEvent() *events.Event {
	return &events.Event{
		Type:      events.TypeTrack,
		MessageID: "m1",
		UserID:    "u1",
		Event:     "Signup",
		Properties: map[string]interface{}{
			"plan": "pro",
		},
	}
}

func TestWebhookDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the raw event with the shared secret", func(t *testing.T) {
		var got events.Event
		var secret, contentType string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret = r.Header.Get(SecretHeader)
			contentType = r.Header.Get("Content-Type")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		d := newTestDestination(srv.URL, 3)
		require.NoError(t, d.Track(ctx, trackEvent()))

		assert.Equal(t, "s3cret", secret)
		assert.Equal(t, "application/json", contentType)
		assert.Equal(t, events.TypeTrack, got.Type)
		assert.Equal(t, "m1", got.MessageID)
		assert.Equal(t, "Signup", got.Event)
		assert.Equal(t, "pro", got.Properties["plan"])
	})

	t.Run("server errors are retried until the budget runs out", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		d := newTestDestination(srv.URL, 3)
		err := d.Track(ctx, trackEvent())

		// Initial call plus the three-retry budget.
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeServer))
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("client errors fail immediately", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		d := newTestDestination(srv.URL, 3)
		err := d.Track(ctx, trackEvent())

		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("recovers when the endpoint comes back", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		d := newTestDestination(srv.URL, 3)
		require.NoError(t, d.Identify(ctx, &events.Event{
			Type:      events.TypeIdentify,
			MessageID: "m2",
			UserID:    "u1",
		}))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("secret header is omitted when unset", func(t *testing.T) {
		var hasSecret bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasSecret = r.Header[SecretHeader]
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
		d := New(srv.URL, "", client, fastPolicy(1))
		require.NoError(t, d.Track(ctx, trackEvent()))
		assert.False(t, hasSecret)
	})
}

func TestWebhookDeliversEveryKind(t *testing.T) {
	ctx := context.Background()

	var types []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e events.Event
		_ = json.NewDecoder(r.Body).Decode(&e)
		types = append(types, string(e.Type))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDestination(srv.URL, 1)
	require.NoError(t, d.Track(ctx, trackEvent()))
	require.NoError(t, d.Identify(ctx, &events.Event{Type: events.TypeIdentify, MessageID: "m2", UserID: "u1"}))
	require.NoError(t, d.Page(ctx, &events.Event{Type: events.TypePage, MessageID: "m3", UserID: "u1"}))
	require.NoError(t, d.Group(ctx, &events.Event{Type: events.TypeGroup, MessageID: "m4", UserID: "u1", GroupID: "g1"}))
	require.NoError(t, d.Alias(ctx, &events.Event{Type: events.TypeAlias, MessageID: "m5", UserID: "u1", PreviousID: "p1"}))

	assert.Equal(t, []string{"track", "identify", "page", "group", "alias"}, types)
}

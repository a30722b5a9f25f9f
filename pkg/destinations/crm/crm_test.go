package crm

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

type capturedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]interface{}
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured = append(captured, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		w.WriteHeader(status)
	}))
	return srv, &captured
}

func newTestDestination(url string) *Destination {
	client := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
	policy := retry.NewPolicy(3, time.Millisecond, 10*time.Millisecond)
	return New(url, "key-123", client, policy)
}

func TestCRMRequests(t *testing.T) {
	ctx := context.Background()
	eventTime := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("track creates an event", func(t *testing.T) {
		srv, captured := newCaptureServer(t, http.StatusOK)
		defer srv.Close()

		d := newTestDestination(srv.URL)
		require.NoError(t, d.Track(ctx, &events.Event{
			Type:      events.TypeTrack,
			MessageID: "m1",
			UserID:    "u1",
			Event:     "Signup",
			Timestamp: eventTime,
			Properties: map[string]interface{}{
				"plan": "pro",
			},
		}))

		require.Len(t, *captured, 1)
		req := (*captured)[0]
		assert.Equal(t, http.MethodPost, req.method)
		assert.Equal(t, "/events", req.path)
		assert.Equal(t, "Bearer key-123", req.auth)
		assert.Equal(t, "Signup", req.body["name"])
		assert.Equal(t, "u1", req.body["user_id"])
		assert.Equal(t, "2026-03-15T12:00:00Z", req.body["timestamp"])
	})

	t.Run("identify upserts the contact", func(t *testing.T) {
		srv, captured := newCaptureServer(t, http.StatusOK)
		defer srv.Close()

		d := newTestDestination(srv.URL)
		require.NoError(t, d.Identify(ctx, &events.Event{
			Type:      events.TypeIdentify,
			MessageID: "m2",
			UserID:    "u1",
			Traits: map[string]interface{}{
				"email": "ada@example.com",
			},
		}))

		require.Len(t, *captured, 1)
		req := (*captured)[0]
		assert.Equal(t, http.MethodPut, req.method)
		assert.Equal(t, "/contacts", req.path)
		traits := req.body["traits"].(map[string]interface{})
		assert.Equal(t, "ada@example.com", traits["email"])
	})

	t.Run("page creates a page view event", func(t *testing.T) {
		srv, captured := newCaptureServer(t, http.StatusOK)
		defer srv.Close()

		d := newTestDestination(srv.URL)
		require.NoError(t, d.Page(ctx, &events.Event{
			Type:      events.TypePage,
			MessageID: "m3",
			UserID:    "u1",
			Name:      "Pricing",
		}))

		require.Len(t, *captured, 1)
		req := (*captured)[0]
		assert.Equal(t, "/events", req.path)
		assert.Equal(t, "Page Viewed", req.body["name"])
		assert.Equal(t, "Pricing", req.body["page"])
	})

	t.Run("group upserts the company", func(t *testing.T) {
		srv, captured := newCaptureServer(t, http.StatusOK)
		defer srv.Close()

		d := newTestDestination(srv.URL)
		require.NoError(t, d.Group(ctx, &events.Event{
			Type:      events.TypeGroup,
			MessageID: "m4",
			UserID:    "u1",
			GroupID:   "acme",
		}))

		require.Len(t, *captured, 1)
		req := (*captured)[0]
		assert.Equal(t, http.MethodPut, req.method)
		assert.Equal(t, "/companies", req.path)
		assert.Equal(t, "acme", req.body["group_id"])
	})

	t.Run("alias links identities", func(t *testing.T) {
		srv, captured := newCaptureServer(t, http.StatusOK)
		defer srv.Close()

		d := newTestDestination(srv.URL)
		require.NoError(t, d.Alias(ctx, &events.Event{
			Type:       events.TypeAlias,
			MessageID:  "m5",
			UserID:     "u1",
			PreviousID: "anon-1",
		}))

		require.Len(t, *captured, 1)
		req := (*captured)[0]
		assert.Equal(t, "/aliases", req.path)
		assert.Equal(t, "u1", req.body["user_id"])
		assert.Equal(t, "anon-1", req.body["previous_id"])
	})
}

func TestCRMErrorHandling(t *testing.T) {
	ctx := context.Background()

	t.Run("rate limits are retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 2 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		d := newTestDestination(srv.URL)
		require.NoError(t, d.Track(ctx, &events.Event{
			Type: events.TypeTrack, MessageID: "m1", UserID: "u1", Event: "Signup",
		}))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("authentication failures are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		d := newTestDestination(srv.URL)
		err := d.Track(ctx, &events.Event{
			Type: events.TypeTrack, MessageID: "m1", UserID: "u1", Event: "Signup",
		})

		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestTimestampFormatting(t *testing.T) {
	assert.Equal(t, "", timestamp(&events.Event{}))
	assert.Equal(t, "2026-03-15T12:00:00Z",
		timestamp(&events.Event{Timestamp: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}))
}

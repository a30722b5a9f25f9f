// Package router fans one event out to every configured destination
// concurrently. Destinations fail independently; one destination's error
// never prevents, delays, or aborts delivery to the others. The router itself
// never retries, retry lives inside each destination adapter.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maccman/opentrack-sub000/pkg/destinations"
	"github.com/maccman/opentrack-sub000/pkg/errors"
	"github.com/maccman/opentrack-sub000/pkg/events"
	"github.com/maccman/opentrack-sub000/pkg/logger"
	"github.com/maccman/opentrack-sub000/pkg/metrics"
)

// Outcome is the delivery result for one destination
type Outcome struct {
	Destination string
	Success     bool
	Duration    time.Duration
	Err         error
}

// Router dispatches events to a fixed set of destinations
type Router struct {
	destinations []destinations.Destination
	logger       *zap.Logger
}

// New creates a router over the given destinations. Outcome order follows
// the destination order given here.
func New(dests []destinations.Destination) *Router {
	return &Router{
		destinations: dests,
		logger:       logger.With(zap.String("component", "router")),
	}
}

// Destinations returns the names of the configured destinations in outcome
// order.
func (r *Router) Destinations() []string {
	names := make([]string, len(r.destinations))
	for i, d := range r.destinations {
		names[i] = d.Name()
	}
	return names
}

// Process validates the event and delivers it to every destination in
// parallel, blocking until all deliveries finish. It returns one outcome per
// destination, indexed in destination order. Validation failure short-circuits
// with an error and no outcomes.
func (r *Router) Process(ctx context.Context, e *events.Event) ([]Outcome, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	deliveryID := uuid.NewString()
	ctx = logger.ContextWithDeliveryID(ctx, deliveryID)
	ctx = logger.ContextWithMessageID(ctx, e.MessageID)
	log := r.logger.With(
		zap.String("delivery_id", deliveryID),
		zap.String("message_id", e.MessageID))

	log.Info("processing started",
		zap.String("type", string(e.Type)),
		zap.String("user_id", e.UserID),
		zap.String("anonymous_id", e.AnonymousID),
		zap.Time("timestamp", e.EffectiveTimestamp(time.Now())))

	metrics.EventsProcessed.WithLabelValues(string(e.Type)).Inc()

	start := time.Now()
	outcomes := make([]Outcome, len(r.destinations))

	var wg sync.WaitGroup
	for i, d := range r.destinations {
		wg.Add(1)
		go func(i int, d destinations.Destination) {
			defer wg.Done()
			outcomes[i] = r.deliver(ctx, log, d, e)
		}(i, d)
	}
	wg.Wait()

	successful := 0
	for _, o := range outcomes {
		if o.Success {
			successful++
		}
	}

	log.Info("processing finished",
		zap.Duration("total_duration", time.Since(start)),
		zap.Int("total", len(outcomes)),
		zap.Int("successful", successful),
		zap.Int("failed", len(outcomes)-successful))

	return outcomes, nil
}

// deliver runs one destination delivery, converting panics and errors into a
// failed outcome so a misbehaving adapter cannot take down its siblings.
func (r *Router) deliver(ctx context.Context, log *zap.Logger, d destinations.Destination, e *events.Event) Outcome {
	name := d.Name()
	log.Debug("delivery started", zap.String("integration", name))

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = errors.New(errors.ErrorTypeInternal,
					fmt.Sprintf("destination panicked: %v", rec))
			}
		}()
		return destinations.Deliver(ctx, d, e)
	}()
	elapsed := time.Since(start)

	metrics.DeliveryDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		metrics.Deliveries.WithLabelValues(name, metrics.StatusFailure).Inc()
		log.Error("delivery failed",
			zap.String("integration", name),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return Outcome{Destination: name, Duration: elapsed, Err: err}
	}

	metrics.Deliveries.WithLabelValues(name, metrics.StatusSuccess).Inc()
	log.Info("delivery succeeded",
		zap.String("integration", name),
		zap.Duration("duration", elapsed))
	return Outcome{Destination: name, Success: true, Duration: elapsed}
}

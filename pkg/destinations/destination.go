// Package destinations defines the destination adapter contract and the
// registry the router is built from. Each adapter forwards one event kind to
// one external system, throwing a classified error on failure; the router
// records outcomes, so adapters never swallow errors themselves.
package destinations

import (
	"context"
	"fmt"

	"github.com/maccman/opentrack-sub000/pkg/errors"
	"github.com/maccman/opentrack-sub000/pkg/events"
)

// Destination is one configured external system events are forwarded to.
// Every method delivers exactly one event and blocks until the delivery
// succeeds, gives up, or fails with a non-retryable error.
type Destination interface {
	Name() string
	Track(ctx context.Context, e *events.Event) error
	Identify(ctx context.Context, e *events.Event) error
	Page(ctx context.Context, e *events.Event) error
	Group(ctx context.Context, e *events.Event) error
	Alias(ctx context.Context, e *events.Event) error
}

// Deliver dispatches one event to the destination method matching its tag.
// An unmatched tag fails loudly; it never falls through silently.
func Deliver(ctx context.Context, d Destination, e *events.Event) error {
	switch e.Type {
	case events.TypeTrack:
		return d.Track(ctx, e)
	case events.TypeIdentify:
		return d.Identify(ctx, e)
	case events.TypePage:
		return d.Page(ctx, e)
	case events.TypeGroup:
		return d.Group(ctx, e)
	case events.TypeAlias:
		return d.Alias(ctx, e)
	default:
		return errors.New(errors.ErrorTypeUnknownPayload,
			fmt.Sprintf("no handler for event type %q", e.Type))
	}
}

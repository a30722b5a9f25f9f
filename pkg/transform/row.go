package transform

import (
	"fmt"
	"time"

	"github.com/maccman/opentrack-sub000/pkg/errors"
	"github.com/maccman/opentrack-sub000/pkg/events"
)

// Transformer builds warehouse rows from events. The clock is injectable for
// tests; production callers use NewTransformer.
type Transformer struct {
	now func() time.Time
}

// NewTransformer creates a row transformer using the wall clock
func NewTransformer() *Transformer {
	return &Transformer{now: time.Now}
}

// NewTransformerWithClock creates a row transformer with a fixed clock
func NewTransformerWithClock(now func() time.Time) *Transformer {
	return &Transformer{now: now}
}

// ToRow turns one event into one flat row of column name to value. Common
// columns come first, then identity, then flattened context, then the
// kind-specific columns. An unrecognized event kind is a programmer error on
// the producing side and is never retried.
func (t *Transformer) ToRow(e *events.Event) (map[string]interface{}, error) {
	now := t.now().UTC()
	ts := e.EffectiveTimestamp(now).UTC()

	row := map[string]interface{}{
		"id":          e.MessageID,
		"received_at": now,
		"sent_at":     ts,
		"timestamp":   ts,
		"uuid_ts":     now,
		"loaded_at":   now,
	}

	if e.UserID != "" {
		row["user_id"] = e.UserID
	}
	if e.AnonymousID != "" && e.Type != events.TypeAlias {
		row["anonymous_id"] = e.AnonymousID
	}

	for k, v := range Flatten(e.Context, "context") {
		row[k] = v
	}

	switch e.Type {
	case events.TypeTrack:
		row["event"] = SnakeCase(e.Event)
		row["event_text"] = e.Event
		mergeInto(row, Flatten(e.Properties, ""))
	case events.TypeIdentify:
		mergeInto(row, Flatten(e.Traits, ""))
	case events.TypePage:
		if e.Name != "" {
			row["name"] = e.Name
		}
		mergeInto(row, Flatten(e.Properties, ""))
	case events.TypeGroup:
		row["group_id"] = e.GroupID
		mergeInto(row, Flatten(e.Traits, ""))
	case events.TypeAlias:
		row["previous_id"] = e.PreviousID
	default:
		return nil, errors.New(errors.ErrorTypeUnknownPayload,
			fmt.Sprintf("cannot build row for event type %q", e.Type))
	}

	return row, nil
}

// TableNames returns the destination tables for an event: the event-specific
// table plus the shared "tracks" table for track calls, the single pluralized
// kind table for everything else.
func TableNames(e *events.Event) ([]string, error) {
	switch e.Type {
	case events.TypeTrack:
		return []string{TableNameForEvent(e.Event), "tracks"}, nil
	case events.TypeIdentify:
		return []string{"identifies"}, nil
	case events.TypePage:
		return []string{"pages"}, nil
	case events.TypeGroup:
		return []string{"groups"}, nil
	case events.TypeAlias:
		return []string{"aliases"}, nil
	default:
		return nil, errors.New(errors.ErrorTypeUnknownPayload,
			fmt.Sprintf("no tables for event type %q", e.Type))
	}
}

// mergeInto copies flattened payload columns into the row without letting a
// payload key clobber an already-set common column.
func mergeInto(row, flat map[string]interface{}) {
	for k, v := range flat {
		if _, exists := row[k]; exists {
			continue
		}
		row[k] = v
	}
}

// Package events defines the analytics event model the delivery core consumes.
// An Event is a tagged union over the five Segment-style call kinds; the tag
// is the Type field and every consumer dispatches on it exhaustively. Events
// arrive already validated at the wire level; Validate enforces only the
// structural invariants the core itself depends on.
package events

import (
	"fmt"
	"time"

	"github.com/maccman/opentrack-sub000/pkg/errors"
)

// Type tags the event kind
type Type string

const (
	TypeTrack    Type = "track"
	TypeIdentify Type = "identify"
	TypePage     Type = "page"
	TypeGroup    Type = "group"
	TypeAlias    Type = "alias"
)

// Types lists all known event kinds
var Types = []Type{TypeTrack, TypeIdentify, TypePage, TypeGroup, TypeAlias}

// Event is one analytics event. It is immutable once created and owned by the
// caller for the duration of one delivery.
type Event struct {
	Type        Type                   `json:"type"`
	MessageID   string                 `json:"messageId"`
	Timestamp   time.Time              `json:"timestamp,omitempty"`
	UserID      string                 `json:"userId,omitempty"`
	AnonymousID string                 `json:"anonymousId,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`

	// Track
	Event      string                 `json:"event,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`

	// Identify and Group
	Traits map[string]interface{} `json:"traits,omitempty"`

	// Page
	Name string `json:"name,omitempty"`

	// Group
	GroupID string `json:"groupId,omitempty"`

	// Alias
	PreviousID string `json:"previousId,omitempty"`
}

// Validate checks the structural invariants of the event kind.
func (e *Event) Validate() error {
	if e.MessageID == "" {
		return errors.New(errors.ErrorTypeValidation, "messageId is required")
	}

	switch e.Type {
	case TypeTrack:
		if e.Event == "" {
			return errors.New(errors.ErrorTypeValidation, "track event name is required")
		}
		return e.requireIdentity()
	case TypeIdentify, TypePage, TypeGroup:
		if e.Type == TypeGroup && e.GroupID == "" {
			return errors.New(errors.ErrorTypeValidation, "groupId is required")
		}
		return e.requireIdentity()
	case TypeAlias:
		if e.UserID == "" || e.PreviousID == "" {
			return errors.New(errors.ErrorTypeValidation, "alias requires userId and previousId")
		}
		return nil
	default:
		return errors.New(errors.ErrorTypeUnknownPayload,
			fmt.Sprintf("unknown event type %q", e.Type))
	}
}

// requireIdentity enforces that the event carries at least one identity field.
func (e *Event) requireIdentity() error {
	if e.UserID == "" && e.AnonymousID == "" {
		return errors.New(errors.ErrorTypeValidation, "userId or anonymousId is required")
	}
	return nil
}

// EffectiveTimestamp returns the event timestamp, falling back to now when the
// producer did not set one.
func (e *Event) EffectiveTimestamp(now time.Time) time.Time {
	if e.Timestamp.IsZero() {
		return now
	}
	return e.Timestamp
}

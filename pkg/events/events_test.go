package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maccman/opentrack-sub000/pkg/errors"
)

func TestValidate(t *testing.T) {
	t.Run("valid events", func(t *testing.T) {
		valid := []*Event{
			{Type: TypeTrack, MessageID: "m", Event: "Signup", UserID: "u1"},
			{Type: TypeTrack, MessageID: "m", Event: "Signup", AnonymousID: "a1"},
			{Type: TypeIdentify, MessageID: "m", UserID: "u1"},
			{Type: TypePage, MessageID: "m", AnonymousID: "a1"},
			{Type: TypeGroup, MessageID: "m", UserID: "u1", GroupID: "g1"},
			{Type: TypeAlias, MessageID: "m", UserID: "u1", PreviousID: "a1"},
		}
		for _, e := range valid {
			assert.NoError(t, e.Validate(), "%s", e.Type)
		}
	})

	t.Run("missing message id", func(t *testing.T) {
		e := &Event{Type: TypeTrack, Event: "Signup", UserID: "u1"}
		assert.Error(t, e.Validate())
	})

	t.Run("track requires an event name", func(t *testing.T) {
		e := &Event{Type: TypeTrack, MessageID: "m", UserID: "u1"}
		assert.Error(t, e.Validate())
	})

	t.Run("identity is required", func(t *testing.T) {
		e := &Event{Type: TypeIdentify, MessageID: "m"}
		assert.Error(t, e.Validate())
	})

	t.Run("group requires a group id", func(t *testing.T) {
		e := &Event{Type: TypeGroup, MessageID: "m", UserID: "u1"}
		assert.Error(t, e.Validate())
	})

	t.Run("alias requires both ids", func(t *testing.T) {
		assert.Error(t, (&Event{Type: TypeAlias, MessageID: "m", UserID: "u1"}).Validate())
		assert.Error(t, (&Event{Type: TypeAlias, MessageID: "m", PreviousID: "p1"}).Validate())
	})

	t.Run("unknown type is an unknown payload", func(t *testing.T) {
		err := (&Event{Type: Type("screen"), MessageID: "m", UserID: "u1"}).Validate()
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownPayload))
	})
}

func TestEffectiveTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("producer timestamp wins", func(t *testing.T) {
		set := now.Add(-time.Hour)
		e := &Event{Timestamp: set}
		assert.Equal(t, set, e.EffectiveTimestamp(now))
	})

	t.Run("zero timestamp falls back to now", func(t *testing.T) {
		e := &Event{}
		assert.Equal(t, now, e.EffectiveTimestamp(now))
	})
}

package event

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// DeserializationError reports that a single event's JSON could not be
// parsed into its typed form. Per the error taxonomy, this is never fatal
// to a sync fold: the offending event is skipped and folding continues.
type DeserializationError struct {
	EventType string
	Err       error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("gomatrixbase: deserializing %q event: %v", e.EventType, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// PeekType reads the `type` field off raw event JSON without a full
// unmarshal, so the fold can decide which typed decode (if any) to run.
func PeekType(raw json.RawMessage) string {
	return gjson.GetBytes(raw, "type").String()
}

// PeekStateKey reads `state_key` off raw event JSON, reporting whether the
// field was present at all (a present-but-empty state_key is legal and
// distinct from a timeline event).
func PeekStateKey(raw json.RawMessage) (string, bool) {
	r := gjson.GetBytes(raw, "state_key")
	return r.String(), r.Exists()
}

// ParseStateEvent fully decodes a raw state event. The returned event's
// Raw field retains the original bytes.
func ParseStateEvent(raw json.RawMessage) (StateEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return StateEvent{}, &DeserializationError{EventType: PeekType(raw), Err: err}
	}
	env.Raw = raw
	return StateEvent{Envelope: env}, nil
}

// ParseTimelineEvent fully decodes a raw timeline event.
func ParseTimelineEvent(raw json.RawMessage) (TimelineEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return TimelineEvent{}, &DeserializationError{EventType: PeekType(raw), Err: err}
	}
	env.Raw = raw
	return TimelineEvent{Envelope: env}, nil
}

// ParseStrippedStateEvent decodes a reduced invite-preview state event.
func ParseStrippedStateEvent(raw json.RawMessage) (StrippedStateEvent, error) {
	var e StrippedStateEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return StrippedStateEvent{}, &DeserializationError{EventType: PeekType(raw), Err: err}
	}
	return e, nil
}

// ParseEphemeralEvent decodes a typing/receipt event.
func ParseEphemeralEvent(raw json.RawMessage) (EphemeralEvent, error) {
	var e EphemeralEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return EphemeralEvent{}, &DeserializationError{EventType: PeekType(raw), Err: err}
	}
	return e, nil
}

// ParseAccountDataEvent decodes an account-data event.
func ParseAccountDataEvent(raw json.RawMessage) (AccountDataEvent, error) {
	var e AccountDataEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return AccountDataEvent{}, &DeserializationError{EventType: PeekType(raw), Err: err}
	}
	return e, nil
}

// ParsePresenceEvent decodes a presence event.
func ParsePresenceEvent(raw json.RawMessage) (PresenceEvent, error) {
	var e PresenceEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return PresenceEvent{}, &DeserializationError{EventType: PeekType(raw), Err: err}
	}
	return e, nil
}

// ParseToDeviceEvent decodes a to-device event (key-sharing traffic and
// similar point-to-point messages that never belong to a room timeline).
func ParseToDeviceEvent(raw json.RawMessage) (ToDeviceEvent, error) {
	var e ToDeviceEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return ToDeviceEvent{}, &DeserializationError{EventType: PeekType(raw), Err: err}
	}
	return e, nil
}

// DecodeContent unmarshals an event's content into dst, wrapping any
// failure as a DeserializationError tagged with eventType for logging.
func DecodeContent(raw json.RawMessage, eventType string, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &DeserializationError{EventType: eventType, Err: err}
	}
	return nil
}

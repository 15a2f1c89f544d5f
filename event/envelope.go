package event

import "encoding/json"

// Kind identifies which sync-response section an event arrived in. It is
// not part of the Matrix wire format; the client state machine assigns it
// based on where in the response the raw JSON was found.
type Kind int

const (
	KindState Kind = iota
	KindStrippedState
	KindTimeline
	KindEphemeral
	KindAccountData
	KindPresence
	KindToDevice
)

// Envelope carries the fields common to every event variant. Unlike a full
// Matrix event schema (left to gomatrixserverlib for anyone who needs to
// emit or sign an event), this is only what the room model and subscriber
// dispatch need to read.
type Envelope struct {
	Type           string          `json:"type"`
	StateKey       *string         `json:"state_key,omitempty"`
	Sender         string          `json:"sender,omitempty"`
	EventID        EventID         `json:"event_id,omitempty"`
	OriginServerTS Timestamp       `json:"origin_server_ts,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	PrevContent    json.RawMessage `json:"unsigned,omitempty"`
	RoomID         RoomID          `json:"-"`

	// Raw is the untouched wire bytes, kept so a decrypted payload can be
	// spliced back in without reconstructing the envelope from scratch.
	Raw json.RawMessage `json:"-"`
}

// IsState reports whether this envelope carries a state_key, matching the
// Matrix CS API's definition of a state event.
func (e Envelope) IsState() bool {
	return e.StateKey != nil
}

// StateEvent is a full state event, delivered in the `state` section of a
// joined or left room, or folded from the timeline when it happens to be
// a state-carrying timeline event (membership, name, power levels, ...).
type StateEvent struct {
	Envelope
}

// StrippedStateEvent is the reduced state the server exposes for invite
// previews: no event_id, no origin_server_ts guarantee.
type StrippedStateEvent struct {
	Type     string          `json:"type"`
	StateKey string          `json:"state_key"`
	Sender   string          `json:"sender"`
	Content  json.RawMessage `json:"content"`
}

// TimelineEvent is an event in a room's causal history. If it arrived as
// m.room.encrypted, decrypted holds the CryptoEngine's output once the
// fold has had a chance to decrypt it.
type TimelineEvent struct {
	Envelope
	decrypted *TimelineEvent
}

// WithDecrypted returns a copy of e whose Decrypted() accessor yields dec.
// The original encrypted envelope is preserved underneath.
func (e TimelineEvent) WithDecrypted(dec TimelineEvent) TimelineEvent {
	e.decrypted = &dec
	return e
}

// Decrypted returns the decrypted form of the event and true if the
// CryptoEngine successfully decrypted it; otherwise it returns the
// original (still-encrypted) event and false.
func (e TimelineEvent) Decrypted() (TimelineEvent, bool) {
	if e.decrypted != nil {
		return *e.decrypted, true
	}
	return e, false
}

// IsEncrypted reports whether this timeline event's type is m.room.encrypted.
func (e TimelineEvent) IsEncrypted() bool {
	return e.Type == "m.room.encrypted"
}

// EphemeralEvent is transient per-room data (typing, receipts) that never
// enters the timeline.
type EphemeralEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// AccountDataEvent is per-user preference data delivered within sync
// (ignored users, push rules, fully-read markers), scoped to a room when
// delivered under rooms.join.<room_id>.account_data.
type AccountDataEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// PresenceEvent reports a user's presence/status.
type PresenceEvent struct {
	Sender  string          `json:"sender"`
	Content json.RawMessage `json:"content"`
}

// ToDeviceEvent is a peer-to-peer event used for key exchange; its content
// is opaque to everything but the CryptoEngine.
type ToDeviceEvent struct {
	Type    string          `json:"type"`
	Sender  string          `json:"sender"`
	Content json.RawMessage `json:"content"`
}

// UnknownEvent preserves an event whose type the room model does not
// recognize, so a later upgrade (or a redaction referencing it) can still
// find it by event_id.
type UnknownEvent struct {
	Envelope
}

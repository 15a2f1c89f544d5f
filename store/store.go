// Package store defines the persistence boundary the client state machine
// folds through. gomatrixbase never opens a database connection from its
// own sync path — every write and read goes through a StateStore the
// caller supplies, mirroring matrix_sdk_base's StateStore trait
// (client.rs) and dendrite's storage-interface-per-component convention.
package store

import (
	"context"
	"encoding/json"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/session"
)

// RoomSnapshot is the durable form of a room's state: one row per state
// event, keyed by (type, state_key), plus the room's membership bucket.
type RoomSnapshot struct {
	RoomID  event.RoomID
	Bucket  string // "joined", "invited", or "left"
	State   map[StateKey]json.RawMessage
	Summary json.RawMessage
}

// StateKey identifies a piece of room state the same way the Matrix C-S
// API does: an event type plus an optional state key (empty string for
// most state events, a user or third-party id for others).
type StateKey struct {
	Type     string
	StateKey string
}

// StoreError wraps any error a StateStore implementation returns, so
// callers can distinguish storage failures from crypto or deserialization
// failures without type-asserting into a specific backend's error type.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// StateStore is the persistence seam. Every method may be called
// concurrently with every other method on different keys; an
// implementation need not provide cross-call transactional isolation —
// the caller (baseclient) applies its own per-resource locking and
// replays from SyncToken on crash, so a StateStore only needs to honor
// read-your-writes within a single goroutine's sequential calls.
type StateStore interface {
	// SaveSession persists the current login session. A nil session
	// clears it (logout).
	SaveSession(ctx context.Context, s *session.Session) error
	// LoadSession returns the last-saved session, or a zero Session if
	// none has ever been saved.
	LoadSession(ctx context.Context) (session.Session, error)

	// SaveSyncToken persists the cursor a resumed sync should present
	// as `since`.
	SaveSyncToken(ctx context.Context, token string) error
	LoadSyncToken(ctx context.Context) (string, error)

	// SaveRoomState persists one room's state-event table and bucket
	// membership. delta contains only the state keys that changed this
	// fold; a nil delta value means "remove this key". baseclient's
	// folds only ever write non-nil values.
	SaveRoomState(ctx context.Context, roomID event.RoomID, bucket string, delta map[StateKey]json.RawMessage) error
	// LoadRoomState returns every room this store has a snapshot for,
	// keyed by room id.
	LoadRoomState(ctx context.Context) (map[event.RoomID]RoomSnapshot, error)
	// DeleteRoom removes a room's snapshot entirely (used when a left
	// room is forgotten).
	DeleteRoom(ctx context.Context, roomID event.RoomID) error

	// SaveAccountData persists one global account-data event.
	SaveAccountData(ctx context.Context, eventType string, content json.RawMessage) error
	// SaveRoomAccountData persists one room-scoped account-data event.
	SaveRoomAccountData(ctx context.Context, roomID event.RoomID, eventType string, content json.RawMessage) error
	// LoadIgnoredUsers returns the cached m.ignored_user_list content,
	// if any account-data fold has ever set it.
	LoadIgnoredUsers(ctx context.Context) ([]string, error)
	// LoadAccountData returns the last-saved content for a global
	// account-data event type, and whether any fold has ever set one.
	// SyncWithStateStore uses this to restore the push ruleset
	// (eventType "m.push_rules") alongside the sync token and
	// ignored-user list.
	LoadAccountData(ctx context.Context, eventType string) (json.RawMessage, bool, error)
}

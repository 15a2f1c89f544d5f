// Package event defines the wire-adjacent identifier and event types the
// client state machine folds. Event JSON itself is treated as an external
// schema (gomatrixserverlib/spec carries the canonical identifier forms);
// this package only adds the sum-type event envelopes the room model and
// client orchestrator need.
package event

import (
	"strings"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

// UserID, RoomID, ServerName and Timestamp are the identifier types the
// rest of the module works with. They are aliases, not wrappers, so that
// a caller handing us a gomatrixserverlib-native value never needs a
// conversion.
type (
	UserID     = spec.UserID
	RoomID     = spec.RoomID
	ServerName = spec.ServerName
	Timestamp  = spec.Timestamp
)

// EventID and DeviceID have no first-class equivalent in gomatrixserverlib
// at the granularity the core needs (room-scoped event references, a
// session-scoped device identifier), so they stay plain opaque strings.
type (
	EventID  string
	DeviceID string
)

// NormalizeRoomAlias trims surrounding whitespace and lowercases the alias
// so it can be compared and stored consistently; Matrix treats room
// aliases case-insensitively.
func NormalizeRoomAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

// NormalizeServerName trims whitespace and lowercases a server name so
// that comparisons and lookups remain case-insensitive, matching the
// RFC 1035 domain-name convention.
func NormalizeServerName(name ServerName) ServerName {
	return ServerName(strings.ToLower(strings.TrimSpace(string(name))))
}

// ParseUserID parses a fully-qualified Matrix user id (@localpart:server).
// Historical user ids with a non-conformant localpart are accepted, since
// a client must be able to represent whatever server state hands it.
func ParseUserID(id string) (UserID, error) {
	uid, err := spec.NewUserID(id, true)
	if err != nil {
		return UserID{}, err
	}
	return *uid, nil
}

// ParseRoomID parses a fully-qualified Matrix room id (!opaque:server).
func ParseRoomID(id string) (RoomID, error) {
	rid, err := spec.NewRoomID(id)
	if err != nil {
		return RoomID{}, err
	}
	return *rid, nil
}

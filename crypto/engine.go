// Package crypto defines the boundary between the client state machine and
// end-to-end encryption. gomatrixbase never implements Olm/Megolm itself —
// CryptoEngine is the seam a real implementation plugs into, mirroring how
// matrix_sdk_base treats its crypto store as an injected dependency behind
// the "encryption" cargo feature rather than an inline implementation.
package crypto

import (
	"context"
	"encoding/json"
)

// DecryptedEvent is the plaintext result of decrypting an
// m.room.encrypted timeline event.
type DecryptedEvent struct {
	Type    string
	Content json.RawMessage
}

// Engine decrypts incoming megolm-encrypted timeline events and handles
// to-device events carrying key material. Implementations are expected to
// be safe for concurrent use; callers serialize access with their own
// mutex regardless (see baseclient's single crypto lock) because most
// real engines (Olm included) are not safe for concurrent Decrypt calls
// against the same session.
type Engine interface {
	// Decrypt returns the plaintext type/content of an m.room.encrypted
	// event. A CryptoError should be returned (not a generic error) when
	// decryption fails for an expected reason (unknown session, replay),
	// so callers can leave the event encrypted rather than drop it.
	Decrypt(ctx context.Context, roomID string, raw json.RawMessage) (DecryptedEvent, error)

	// ReceiveToDeviceEvent feeds an m.room_key / m.room_key_request /
	// m.forwarded_room_key event (or any other to-device event) to the
	// engine for key-material bookkeeping. Most to-device types are
	// irrelevant to a given engine and should be ignored, not errored.
	ReceiveToDeviceEvent(ctx context.Context, sender, eventType string, content json.RawMessage) error

	// ReceiveDeviceListUpdate informs the engine that the given users'
	// device lists are stale and should be re-queried before the next
	// encrypted send to a room containing them.
	ReceiveDeviceListUpdate(ctx context.Context, changed, left []string) error

	// ShouldUploadKeys reports whether the engine has one-time or
	// fallback keys it has not yet uploaded to the homeserver.
	ShouldUploadKeys(ctx context.Context) bool
	// ShouldShareGroupSession reports whether the outbound megolm
	// session for roomID needs to be (re)shared before the next send —
	// true on the first send into a room, or after membership changed
	// or the session's message/time budget expired.
	ShouldShareGroupSession(ctx context.Context, roomID string) bool
	// ShouldQueryKeys reports whether the engine has pending users whose
	// device lists it has never queried or which ReceiveDeviceListUpdate
	// marked stale.
	ShouldQueryKeys(ctx context.Context) bool

	// GetMissingSessions returns a /keys/claim request body for the
	// subset of userIDs the engine has no usable Olm session for yet.
	GetMissingSessions(ctx context.Context, userIDs []string) (KeysClaimRequest, error)
	// ShareGroupSession returns the per-device to-device payloads needed
	// to distribute the current (or a freshly rotated) outbound megolm
	// session for roomID to members.
	ShareGroupSession(ctx context.Context, roomID string, members []string) (ToDeviceRequest, error)
	// KeysForUpload returns the device/one-time/fallback keys the engine
	// wants uploaded via /keys/upload.
	KeysForUpload(ctx context.Context) (KeysUploadRequest, error)
	// UsersForKeyQuery returns the set of user ids the engine wants
	// queried via /keys/query.
	UsersForKeyQuery(ctx context.Context) ([]string, error)

	// Encrypt returns the m.room.encrypted content for plaintext
	// eventType/content in roomID, using (and implicitly consuming a
	// message from) the room's current outbound group session.
	Encrypt(ctx context.Context, roomID, eventType string, content json.RawMessage) (json.RawMessage, error)

	// ReceiveKeysUploadResponse/Claim/Query fold the homeserver's
	// response to the corresponding request builder back into the
	// engine's key database.
	ReceiveKeysUploadResponse(ctx context.Context, resp KeysUploadResponse) error
	ReceiveKeysClaimResponse(ctx context.Context, resp KeysClaimResponse) error
	ReceiveKeysQueryResponse(ctx context.Context, resp KeysQueryResponse) error
}

// KeysClaimRequest is the body of a POST /keys/claim request: for each
// user id, the device ids and algorithms to claim a one-time key for.
// Opaque to the core beyond being passed through to the transport layer.
type KeysClaimRequest struct {
	OneTimeKeys map[string]map[string]string `json:"one_time_keys"`
}

// KeysClaimResponse is the homeserver's response to a KeysClaimRequest.
type KeysClaimResponse struct {
	OneTimeKeys map[string]map[string]map[string]json.RawMessage `json:"one_time_keys"`
}

// ToDeviceRequest is the body of a PUT /sendToDevice request: per-user,
// per-device payloads (room-key shares, here).
type ToDeviceRequest struct {
	EventType string                                   `json:"event_type"`
	Messages  map[string]map[string]json.RawMessage    `json:"messages"`
}

// KeysUploadRequest is the body of a POST /keys/upload request.
type KeysUploadRequest struct {
	DeviceKeys    json.RawMessage            `json:"device_keys,omitempty"`
	OneTimeKeys   map[string]json.RawMessage `json:"one_time_keys,omitempty"`
	FallbackKeys  map[string]json.RawMessage `json:"fallback_keys,omitempty"`
}

// KeysUploadResponse is the homeserver's response to a KeysUploadRequest:
// a count of one-time keys still held server-side per algorithm.
type KeysUploadResponse struct {
	OneTimeKeyCounts map[string]int `json:"one_time_key_counts"`
}

// KeysQueryRequest is the body of a POST /keys/query request.
type KeysQueryRequest struct {
	DeviceKeys map[string][]string `json:"device_keys"`
}

// KeysQueryResponse is the homeserver's response to a KeysQueryRequest:
// per-user, per-device key blobs.
type KeysQueryResponse struct {
	DeviceKeys map[string]map[string]json.RawMessage `json:"device_keys"`
}

// CryptoError wraps a decrypt/key-handling failure that is expected to
// happen in normal operation (missing session, replayed message index).
// Callers receiving a CryptoError leave the triggering event encrypted
// and still dispatch it, per spec.
type CryptoError struct {
	RoomID  string
	EventID string
	Err     error
}

func (e *CryptoError) Error() string {
	return "crypto: " + e.Err.Error() + " (room " + e.RoomID + ", event " + e.EventID + ")"
}

func (e *CryptoError) Unwrap() error { return e.Err }

package crypto

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrNoCryptoEngine is returned by NoOp.Decrypt for every encrypted
// event. It is the default Engine when a Client is constructed without
// one — encryption support is opt-in, matching matrix_sdk_base building
// without its "encryption" feature enabled.
var ErrNoCryptoEngine = errors.New("crypto: no engine configured, event left encrypted")

// NoOp is the default Engine: it cannot decrypt anything and silently
// discards to-device and device-list traffic. A Client falls back to
// this so that a caller who never wires in real E2E support still gets
// a well-defined (non-nil, non-panicking) crypto boundary.
type NoOp struct{}

var _ Engine = NoOp{}

func (NoOp) Decrypt(_ context.Context, roomID string, raw json.RawMessage) (DecryptedEvent, error) {
	return DecryptedEvent{}, &CryptoError{RoomID: roomID, Err: ErrNoCryptoEngine}
}

func (NoOp) ReceiveToDeviceEvent(context.Context, string, string, json.RawMessage) error {
	return nil
}

func (NoOp) ReceiveDeviceListUpdate(context.Context, []string, []string) error {
	return nil
}

func (NoOp) ShouldUploadKeys(context.Context) bool               { return false }
func (NoOp) ShouldShareGroupSession(context.Context, string) bool { return false }
func (NoOp) ShouldQueryKeys(context.Context) bool                 { return false }

func (NoOp) GetMissingSessions(context.Context, []string) (KeysClaimRequest, error) {
	return KeysClaimRequest{}, nil
}

func (NoOp) ShareGroupSession(context.Context, string, []string) (ToDeviceRequest, error) {
	return ToDeviceRequest{}, nil
}

func (NoOp) KeysForUpload(context.Context) (KeysUploadRequest, error) {
	return KeysUploadRequest{}, nil
}

func (NoOp) UsersForKeyQuery(context.Context) ([]string, error) {
	return nil, nil
}

func (NoOp) Encrypt(_ context.Context, roomID, _ string, _ json.RawMessage) (json.RawMessage, error) {
	return nil, &CryptoError{RoomID: roomID, Err: ErrNoCryptoEngine}
}

func (NoOp) ReceiveKeysUploadResponse(context.Context, KeysUploadResponse) error { return nil }
func (NoOp) ReceiveKeysClaimResponse(context.Context, KeysClaimResponse) error   { return nil }
func (NoOp) ReceiveKeysQueryResponse(context.Context, KeysQueryResponse) error   { return nil }

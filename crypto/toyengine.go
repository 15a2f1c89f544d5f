package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// ToyEngine is a test-only stand-in for a real Olm/Megolm implementation.
// It encrypts/decrypts with nacl/secretbox under a per-room key derived
// from a shared secret, which is nowhere close to Megolm's ratcheting
// session model — it exists purely so tests can exercise the
// encrypted-timeline-event code path without vendoring a real crypto
// library, the same way internal/passwordreset's bcrypt use stands in
// for a password hasher without pulling in the real auth stack.
//
// The key-management decision surface (ShouldUploadKeys and friends) is
// implemented just enough to exercise baseclient's wiring end-to-end: a
// single shared group "session" per room, no device tracking, no actual
// Olm pre-key claim. ShareGroupSession and GetMissingSessions always
// return empty requests; neither produces real key material.
type ToyEngine struct {
	mu     sync.Mutex
	secret [32]byte
	// roomKeys caches per-room derived keys so repeated decrypts don't
	// re-hash on every call.
	roomKeys map[string]*[32]byte
	// sharedWith tracks which rooms this engine has already "shared" its
	// group session for, so ShouldShareGroupSession reports true only
	// until ShareGroupSession has been called for that room.
	sharedWith map[string]bool
	// uploaded is flipped once KeysForUpload has been called, so
	// ShouldUploadKeys reports true only on first use.
	uploaded bool
}

var _ Engine = (*ToyEngine)(nil)

// NewToyEngine builds a ToyEngine from a shared secret. Every instance
// sharing the same secret can decrypt the same rooms' toy-encrypted
// events — there is no key exchange, so this must never be used outside
// tests.
func NewToyEngine(secret [32]byte) *ToyEngine {
	return &ToyEngine{
		secret:     secret,
		roomKeys:   make(map[string]*[32]byte),
		sharedWith: make(map[string]bool),
	}
}

type toyEnvelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Encrypt produces the raw m.room.encrypted content Decrypt expects back.
func (e *ToyEngine) Encrypt(_ context.Context, roomID string, plaintextType string, plaintextContent json.RawMessage) (json.RawMessage, error) {
	inner, err := json.Marshal(DecryptedEvent{Type: plaintextType, Content: plaintextContent})
	if err != nil {
		return nil, err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	key := e.roomKey(roomID)
	sealed := secretbox.Seal(nil, inner, &nonce, key)

	env := toyEnvelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}
	return json.Marshal(env)
}

func (e *ToyEngine) Decrypt(_ context.Context, roomID string, raw json.RawMessage) (DecryptedEvent, error) {
	var env toyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return DecryptedEvent{}, &CryptoError{RoomID: roomID, Err: errors.Wrap(err, "malformed toy envelope")}
	}

	nonceBytes, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return DecryptedEvent{}, &CryptoError{RoomID: roomID, Err: errors.New("bad nonce")}
	}
	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return DecryptedEvent{}, &CryptoError{RoomID: roomID, Err: errors.New("bad ciphertext encoding")}
	}

	key := e.roomKey(roomID)
	plain, ok := secretbox.Open(nil, ciphertext, &nonce, key)
	if !ok {
		return DecryptedEvent{}, &CryptoError{RoomID: roomID, Err: errors.New("decryption failed")}
	}

	var dec DecryptedEvent
	if err := json.Unmarshal(plain, &dec); err != nil {
		return DecryptedEvent{}, &CryptoError{RoomID: roomID, Err: errors.Wrap(err, "malformed plaintext")}
	}
	return dec, nil
}

func (e *ToyEngine) ReceiveToDeviceEvent(context.Context, string, string, json.RawMessage) error {
	return nil
}

func (e *ToyEngine) ReceiveDeviceListUpdate(context.Context, []string, []string) error {
	return nil
}

func (e *ToyEngine) ShouldUploadKeys(context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.uploaded
}

func (e *ToyEngine) ShouldShareGroupSession(_ context.Context, roomID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.sharedWith[roomID]
}

func (e *ToyEngine) ShouldQueryKeys(context.Context) bool {
	return false
}

// GetMissingSessions always reports no missing sessions: ToyEngine has
// no per-device Olm session model, only a per-room shared secret, so
// there is nothing for a real /keys/claim call to fetch.
func (e *ToyEngine) GetMissingSessions(context.Context, []string) (KeysClaimRequest, error) {
	return KeysClaimRequest{}, nil
}

// ShareGroupSession marks roomID as shared and returns an empty request:
// ToyEngine's "group session" is a deterministic hash of the room id, so
// there is no key material that actually needs distributing to devices.
func (e *ToyEngine) ShareGroupSession(_ context.Context, roomID string, _ []string) (ToDeviceRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sharedWith[roomID] = true
	return ToDeviceRequest{}, nil
}

func (e *ToyEngine) KeysForUpload(context.Context) (KeysUploadRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uploaded = true
	return KeysUploadRequest{}, nil
}

func (e *ToyEngine) UsersForKeyQuery(context.Context) ([]string, error) {
	return nil, nil
}

func (e *ToyEngine) ReceiveKeysUploadResponse(context.Context, KeysUploadResponse) error {
	return nil
}

func (e *ToyEngine) ReceiveKeysClaimResponse(context.Context, KeysClaimResponse) error {
	return nil
}

func (e *ToyEngine) ReceiveKeysQueryResponse(context.Context, KeysQueryResponse) error {
	return nil
}

func (e *ToyEngine) roomKey(roomID string) *[32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if k, ok := e.roomKeys[roomID]; ok {
		return k
	}
	sum := sha256.Sum256(append(e.secret[:], []byte(roomID)...))
	e.roomKeys[roomID] = &sum
	return &sum
}

package crypto

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToyEngineEncryptDecryptRoundTrip(t *testing.T) {
	var secret [32]byte
	copy(secret[:], []byte("a fixed 32-byte shared test key"))
	e := NewToyEngine(secret)
	ctx := context.Background()

	raw, err := e.Encrypt(ctx, "!room:example.org", "m.room.message", json.RawMessage(`{"body":"hi"}`))
	require.NoError(t, err)

	dec, err := e.Decrypt(ctx, "!room:example.org", raw)
	require.NoError(t, err)
	assert.Equal(t, "m.room.message", dec.Type)
	assert.JSONEq(t, `{"body":"hi"}`, string(dec.Content))
}

func TestToyEngineDecryptWrongRoomFails(t *testing.T) {
	var secret [32]byte
	copy(secret[:], []byte("a fixed 32-byte shared test key"))
	e := NewToyEngine(secret)
	ctx := context.Background()

	raw, err := e.Encrypt(ctx, "!room-a:example.org", "m.room.message", json.RawMessage(`{"body":"hi"}`))
	require.NoError(t, err)

	_, err = e.Decrypt(ctx, "!room-b:example.org", raw)
	assert.Error(t, err)
}

func TestToyEngineTwoInstancesSharingSecretCanDecrypt(t *testing.T) {
	var secret [32]byte
	copy(secret[:], []byte("a fixed 32-byte shared test key"))
	alice := NewToyEngine(secret)
	bob := NewToyEngine(secret)
	ctx := context.Background()

	raw, err := alice.Encrypt(ctx, "!room:example.org", "m.room.message", json.RawMessage(`{"body":"hi bob"}`))
	require.NoError(t, err)

	dec, err := bob.Decrypt(ctx, "!room:example.org", raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"hi bob"}`, string(dec.Content))
}

func TestToyEngineShouldUploadKeysOnlyOnce(t *testing.T) {
	var secret [32]byte
	e := NewToyEngine(secret)
	ctx := context.Background()

	assert.True(t, e.ShouldUploadKeys(ctx))
	_, err := e.KeysForUpload(ctx)
	require.NoError(t, err)
	assert.False(t, e.ShouldUploadKeys(ctx))
}

func TestToyEngineShouldShareGroupSessionPerRoom(t *testing.T) {
	var secret [32]byte
	e := NewToyEngine(secret)
	ctx := context.Background()

	assert.True(t, e.ShouldShareGroupSession(ctx, "!room-a:example.org"))
	assert.True(t, e.ShouldShareGroupSession(ctx, "!room-b:example.org"))

	_, err := e.ShareGroupSession(ctx, "!room-a:example.org", []string{"@alice:example.org"})
	require.NoError(t, err)

	assert.False(t, e.ShouldShareGroupSession(ctx, "!room-a:example.org"))
	assert.True(t, e.ShouldShareGroupSession(ctx, "!room-b:example.org"))
}

func TestToyEngineGetMissingSessionsAlwaysEmpty(t *testing.T) {
	e := NewToyEngine([32]byte{})
	req, err := e.GetMissingSessions(context.Background(), []string{"@alice:example.org"})
	require.NoError(t, err)
	assert.Equal(t, KeysClaimRequest{}, req)
}

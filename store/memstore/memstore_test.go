package memstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/session"
	"github.com/matrix-org/gomatrixbase/store"
)

func TestSessionRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	loaded, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.IsZero())

	userID, err := event.ParseUserID("@alice:example.org")
	require.NoError(t, err)
	sess := session.Session{UserID: userID, DeviceID: "DEVICE1", AccessToken: "tok"}
	require.NoError(t, s.SaveSession(ctx, &sess))

	loaded, err = s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, loaded)

	require.NoError(t, s.SaveSession(ctx, nil))
	loaded, err = s.LoadSession(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.IsZero())
}

func TestSyncTokenRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	token, err := s.LoadSyncToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", token)

	require.NoError(t, s.SaveSyncToken(ctx, "s1"))
	token, err = s.LoadSyncToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", token)
}

func TestRoomStateDeltaAppliesAndDeletes(t *testing.T) {
	s := New()
	ctx := context.Background()

	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)

	nameKey := store.StateKey{Type: "m.room.name", StateKey: ""}
	topicKey := store.StateKey{Type: "m.room.topic", StateKey: ""}

	require.NoError(t, s.SaveRoomState(ctx, roomID, "joined", map[store.StateKey]json.RawMessage{
		nameKey:  json.RawMessage(`{"type":"m.room.name","content":{"name":"Room"}}`),
		topicKey: json.RawMessage(`{"type":"m.room.topic","content":{"topic":"hi"}}`),
	}))

	snapshots, err := s.LoadRoomState(ctx)
	require.NoError(t, err)
	snap, ok := snapshots[roomID]
	require.True(t, ok)
	assert.Equal(t, "joined", snap.Bucket)
	assert.Len(t, snap.State, 2)

	// A nil value in a delta deletes the existing key instead of storing nil.
	require.NoError(t, s.SaveRoomState(ctx, roomID, "joined", map[store.StateKey]json.RawMessage{
		topicKey: nil,
	}))

	snapshots, err = s.LoadRoomState(ctx)
	require.NoError(t, err)
	snap, ok = snapshots[roomID]
	require.True(t, ok)
	assert.Len(t, snap.State, 1)
	_, hasTopic := snap.State[topicKey]
	assert.False(t, hasTopic)
	_, hasName := snap.State[nameKey]
	assert.True(t, hasName)
}

func TestDeleteRoomRemovesSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)

	require.NoError(t, s.SaveRoomState(ctx, roomID, "joined", map[store.StateKey]json.RawMessage{
		{Type: "m.room.name", StateKey: ""}: json.RawMessage(`{}`),
	}))
	require.NoError(t, s.DeleteRoom(ctx, roomID))

	snapshots, err := s.LoadRoomState(ctx)
	require.NoError(t, err)
	_, ok := snapshots[roomID]
	assert.False(t, ok)
}

func TestAccountDataAndIgnoredUsers(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveAccountData(ctx, "m.ignored_user_list", json.RawMessage(`{"ignored_users":{"@spam:example.org":{}}}`)))

	users, err := s.LoadIgnoredUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"@spam:example.org"}, users)
}

func TestRoomAccountDataIsPerRoom(t *testing.T) {
	s := New()
	ctx := context.Background()
	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)

	require.NoError(t, s.SaveRoomAccountData(ctx, roomID, "m.fully_read", json.RawMessage(`{"event_id":"$1"}`)))

	snapshots, err := s.LoadRoomState(ctx)
	require.NoError(t, err)
	_, ok := snapshots[roomID]
	assert.True(t, ok, "saving room account data creates the room entry")
}

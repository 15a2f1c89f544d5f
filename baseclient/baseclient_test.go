package baseclient

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrix-org/gomatrixbase/crypto"
	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/subscriber"
)

func loggedInClient(t *testing.T) *Client {
	t.Helper()
	c := New()
	userID, err := event.ParseUserID("@alice:example.org")
	require.NoError(t, err)
	require.NoError(t, c.ReceiveLoginResponse(context.Background(), LoginResponse{
		UserID:      userID,
		DeviceID:    "DEVICE1",
		AccessToken: "tok",
	}))
	return c
}

func joinSyncResponse(nextBatch, roomID string) *event.SyncResponse {
	var resp event.SyncResponse
	raw := []byte(`{
		"next_batch": "` + nextBatch + `",
		"rooms": {
			"join": {
				"` + roomID + `": {
					"state": {"events": [
						{"type":"m.room.create","state_key":"","sender":"@alice:example.org","content":{"creator":"@alice:example.org"}},
						{"type":"m.room.name","state_key":"","sender":"@alice:example.org","content":{"name":"Test Room"}}
					]},
					"timeline": {"events": [
						{"type":"m.room.message","event_id":"$1","sender":"@alice:example.org","content":{"msgtype":"m.text","body":"hello"}}
					]}
				}
			}
		}
	}`)
	if err := json.Unmarshal(raw, &resp); err != nil {
		panic(err)
	}
	return &resp
}

// recordingSubscriber captures every RoomUpdate it receives and, per the
// lock-free-callback invariant, reads the updated Room through one of its
// locking accessors to prove the dispatcher is not holding a bucket or
// room lock.
type recordingSubscriber struct {
	mu      sync.Mutex
	updates []subscriber.RoomUpdate
	client  *Client
}

func (s *recordingSubscriber) OnRoomUpdate(update subscriber.RoomUpdate) {
	s.mu.Lock()
	s.updates = append(s.updates, update)
	s.mu.Unlock()

	if update.Bucket == "joined" {
		if r, ok := s.client.JoinedRoom(update.RoomID); ok {
			// Touch a room accessor from inside the callback: if the
			// dispatcher were still holding a bucket or room lock this
			// would deadlock.
			_ = r.Name()
		}
	}
}

func (s *recordingSubscriber) OnAccountData(string, []byte)   {}
func (s *recordingSubscriber) OnPresence(event.PresenceEvent) {}
func (s *recordingSubscriber) OnToDevice(event.ToDeviceEvent) {}

func (s *recordingSubscriber) snapshot() []subscriber.RoomUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]subscriber.RoomUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}

func TestReceiveSyncResponseAppliesJoinedRoomState(t *testing.T) {
	c := loggedInClient(t)
	resp := joinSyncResponse("s1", "!room:example.org")

	require.NoError(t, c.ReceiveSyncResponse(context.Background(), resp))

	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)

	r, ok := c.JoinedRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, "Test Room", r.Name())
	assert.Equal(t, "s1", c.SyncToken())
}

func TestReceiveSyncResponseIsIdempotentOnRepeatCursor(t *testing.T) {
	c := loggedInClient(t)
	resp := joinSyncResponse("s1", "!room:example.org")

	require.NoError(t, c.ReceiveSyncResponse(context.Background(), resp))

	sub := &recordingSubscriber{client: c}
	c.Subscribe(sub)

	// Same next_batch again: receiveSyncResponse must treat this as a
	// no-op and must not re-dispatch anything.
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), resp))
	assert.Empty(t, sub.snapshot())
}

func TestReceiveSyncResponseCursorMonotonic(t *testing.T) {
	c := loggedInClient(t)
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s1", "!room:example.org")))
	assert.Equal(t, "s1", c.SyncToken())

	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s2", "!room:example.org")))
	assert.Equal(t, "s2", c.SyncToken())
}

func TestReceiveSyncResponseDispatchesAfterStateIsApplied(t *testing.T) {
	c := loggedInClient(t)
	sub := &recordingSubscriber{client: c}
	c.Subscribe(sub)

	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s1", "!room:example.org")))

	updates := sub.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, "joined", updates[0].Bucket)
	require.Len(t, updates[0].Timeline, 1)

	// By the time the callback ran, the room's name already reflected
	// the m.room.name state event from the same fold (emit-after-apply).
	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)
	r, ok := c.JoinedRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, "Test Room", r.Name())
}

func TestReceiveSyncResponseRequiresLogin(t *testing.T) {
	c := New()
	err := c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s1", "!room:example.org"))
	// The fold itself never returns the per-room error: a room it cannot
	// touch is simply skipped and logged, matching the source's
	// skip-and-warn behavior for a single bad room rather than aborting
	// the whole fold. The cursor still advances.
	assert.NoError(t, err)
	assert.Equal(t, "s1", c.SyncToken())

	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)
	_, ok := c.JoinedRoom(roomID)
	assert.False(t, ok)
}

func TestBucketTransitionInviteToJoin(t *testing.T) {
	c := loggedInClient(t)
	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)

	inviteResp := &event.SyncResponse{NextBatch: "s1"}
	inviteRaw := []byte(`{
		"next_batch": "s1",
		"rooms": {"invite": {"!room:example.org": {"invite_state": {"events": [
			{"type":"m.room.name","state_key":"","sender":"@bob:example.org","content":{"name":"Invite Room"}}
		]}}}}
	}`)
	require.NoError(t, json.Unmarshal(inviteRaw, inviteResp))
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), inviteResp))

	_, ok := c.InvitedRoom(roomID)
	require.True(t, ok)

	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s2", "!room:example.org")))

	_, stillInvited := c.InvitedRoom(roomID)
	assert.False(t, stillInvited, "joining a room must evict it from the invited bucket")
	r, ok := c.JoinedRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, "Test Room", r.Name())
}

func TestBucketTransitionJoinToLeaveToRejoin(t *testing.T) {
	c := loggedInClient(t)
	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)

	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s1", "!room:example.org")))
	_, ok := c.JoinedRoom(roomID)
	require.True(t, ok)

	leaveResp := &event.SyncResponse{}
	leaveRaw := []byte(`{
		"next_batch": "s2",
		"rooms": {"leave": {"!room:example.org": {"state": {"events": [
			{"type":"m.room.member","state_key":"@alice:example.org","sender":"@alice:example.org","content":{"membership":"leave"}}
		]}, "timeline": {"events": []}}}}
	}`)
	require.NoError(t, json.Unmarshal(leaveRaw, leaveResp))
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), leaveResp))

	_, stillJoined := c.JoinedRoom(roomID)
	assert.False(t, stillJoined)
	_, leftOk := c.LeftRoom(roomID)
	assert.True(t, leftOk)

	// Rejoining evicts the room from the left bucket again.
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s3", "!room:example.org")))
	_, stillLeft := c.LeftRoom(roomID)
	assert.False(t, stillLeft)
	_, joinedAgain := c.JoinedRoom(roomID)
	assert.True(t, joinedAgain)
}

func TestIgnoredUsersStableNoChangeOnIdenticalList(t *testing.T) {
	c := loggedInClient(t)

	resp := &event.SyncResponse{}
	raw := []byte(`{
		"next_batch": "s1",
		"account_data": {"events": [
			{"type":"m.ignored_user_list","content":{"ignored_users":{"@spam:example.org":{}}}}
		]}
	}`)
	require.NoError(t, json.Unmarshal(raw, resp))
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), resp))
	assert.Equal(t, []string{"@spam:example.org"}, c.IgnoredUsers())

	sub := &recordingSubscriber{client: c}
	c.Subscribe(sub)

	resp2 := &event.SyncResponse{}
	raw2 := []byte(`{
		"next_batch": "s2",
		"account_data": {"events": [
			{"type":"m.ignored_user_list","content":{"ignored_users":{"@spam:example.org":{}}}}
		]}
	}`)
	require.NoError(t, json.Unmarshal(raw2, resp2))
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), resp2))
	assert.Equal(t, []string{"@spam:example.org"}, c.IgnoredUsers())
}

func TestSyncWithStateStoreReplaysPersistedRooms(t *testing.T) {
	c := loggedInClient(t)
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s1", "!room:example.org")))

	sess := c.Session()
	c2 := New(WithStateStore(c.stateStore), WithSession(sess))

	ok, err := c2.SyncWithStateStore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, c2.IsStateStoreSynced())
	assert.Equal(t, "s1", c2.SyncToken())

	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)
	r, ok := c2.JoinedRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, "Test Room", r.Name())
}

func TestSyncWithStateStoreReplayIsIdempotent(t *testing.T) {
	c := loggedInClient(t)
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s1", "!room:example.org")))

	sess := c.Session()
	c2 := New(WithStateStore(c.stateStore), WithSession(sess))

	_, err := c2.SyncWithStateStore(context.Background())
	require.NoError(t, err)
	firstToken := c2.SyncToken()

	_, err = c2.SyncWithStateStore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, firstToken, c2.SyncToken())
}

func TestSyncWithStateStoreWithoutSessionIsNoOp(t *testing.T) {
	c := New()
	ok, err := c.SyncWithStateStore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncWithStateStoreRestoresPushRuleset(t *testing.T) {
	c := loggedInClient(t)
	var resp event.SyncResponse
	raw := []byte(`{
		"next_batch": "s1",
		"account_data": {"events": [
			{"type":"m.push_rules","content":{"global":{"override":[]}}}
		]}
	}`)
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), &resp))

	_, hadRules := c.PushRuleset()
	require.True(t, hadRules)

	sess := c.Session()
	c2 := New(WithStateStore(c.stateStore), WithSession(sess))

	ok, err := c2.SyncWithStateStore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ruleset, hadRules := c2.PushRuleset()
	require.True(t, hadRules)
	assert.Contains(t, ruleset, "override")
}

func TestStoreRoomStateFlushesOnDemand(t *testing.T) {
	c := loggedInClient(t)
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), joinSyncResponse("s1", "!room:example.org")))

	roomID, err := event.ParseRoomID("!room:example.org")
	require.NoError(t, err)

	require.NoError(t, c.StoreRoomState(context.Background(), roomID))

	sess := c.Session()
	c2 := New(WithStateStore(c.stateStore), WithSession(sess))
	ok, err := c2.SyncWithStateStore(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	r, ok := c2.JoinedRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, "Test Room", r.Name())
}

func TestStoreRoomStateUnknownRoomReturnsError(t *testing.T) {
	c := loggedInClient(t)
	roomID, err := event.ParseRoomID("!nope:example.org")
	require.NoError(t, err)
	assert.ErrorIs(t, c.StoreRoomState(context.Background(), roomID), ErrRoomNotFound)
}

func TestEncryptedTimelineEventDecryptsWithMatchingEngine(t *testing.T) {
	var secret [32]byte
	engine := crypto.NewToyEngine(secret)

	userID, err := event.ParseUserID("@alice:example.org")
	require.NoError(t, err)
	c := New(WithCryptoEngine(engine))
	require.NoError(t, c.ReceiveLoginResponse(context.Background(), LoginResponse{
		UserID: userID, DeviceID: "DEVICE1", AccessToken: "tok",
	}))
	sub := &recordingSubscriber{client: c}
	c.Subscribe(sub)

	plaintext, err := engine.Encrypt(context.Background(), "!room:example.org", "m.room.message", json.RawMessage(`{"msgtype":"m.text","body":"secret"}`))
	require.NoError(t, err)

	resp := &event.SyncResponse{}
	raw := []byte(`{
		"next_batch": "s1",
		"rooms": {"join": {"!room:example.org": {
			"timeline": {"events": [
				{"type":"m.room.encrypted","event_id":"$enc1","sender":"@bob:example.org","content":` + string(plaintext) + `}
			]}
		}}}
	}`)
	require.NoError(t, json.Unmarshal(raw, resp))

	require.NoError(t, c.ReceiveSyncResponse(context.Background(), resp))

	updates := sub.snapshot()
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Timeline, 1)
	dec, ok := updates[0].Timeline[0].Decrypted()
	require.True(t, ok, "ToyEngine should have decrypted the event")
	assert.Equal(t, "m.room.message", dec.Type)

	var content event.MessageContent
	require.NoError(t, event.DecodeContent(dec.Content, dec.Type, &content))
	assert.Equal(t, "secret", content.Body)
}

func TestEncryptedTimelineEventStaysEncryptedWithoutEngine(t *testing.T) {
	c := loggedInClient(t)
	sub := &recordingSubscriber{client: c}
	c.Subscribe(sub)

	resp := &event.SyncResponse{}
	raw := []byte(`{
		"next_batch": "s1",
		"rooms": {"join": {"!room:example.org": {
			"timeline": {"events": [
				{"type":"m.room.encrypted","event_id":"$enc1","sender":"@bob:example.org","content":{"algorithm":"m.megolm.v1.aes-sha2","ciphertext":"opaque"}}
			]}
		}}}
	}`)
	require.NoError(t, json.Unmarshal(raw, resp))
	require.NoError(t, c.ReceiveSyncResponse(context.Background(), resp))

	updates := sub.snapshot()
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Timeline, 1)
	_, decrypted := updates[0].Timeline[0].Decrypted()
	assert.False(t, decrypted, "crypto.NoOp must leave the event encrypted")
}

package room

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrix-org/gomatrixbase/event"
)

func mustRoomID(t *testing.T, s string) event.RoomID {
	t.Helper()
	id, err := event.ParseRoomID(s)
	require.NoError(t, err)
	return id
}

func mustUserID(t *testing.T, s string) event.UserID {
	t.Helper()
	id, err := event.ParseUserID(s)
	require.NoError(t, err)
	return id
}

func stateEvent(t *testing.T, eventType, stateKey string, content string) event.StateEvent {
	t.Helper()
	sk := stateKey
	return event.StateEvent{Envelope: event.Envelope{
		Type:     eventType,
		StateKey: &sk,
		Content:  json.RawMessage(content),
	}}
}

func TestReceiveStateEventNameChanged(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))

	changed, err := r.ReceiveStateEvent(stateEvent(t, "m.room.name", "", `{"name":"Cool Room"}`))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Cool Room", r.Name())

	// Re-applying the same name reports no change.
	changed, err = r.ReceiveStateEvent(stateEvent(t, "m.room.name", "", `{"name":"Cool Room"}`))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestNameResolutionPrecedence(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))

	// No name, no alias, no summary: generic fallback.
	assert.Equal(t, "Empty Room", r.Name())

	// Aliases set: first alias used.
	_, err := r.ReceiveStateEvent(stateEvent(t, "m.room.aliases", "example.org", `{"aliases":["#foo:example.org","#bar:example.org"]}`))
	require.NoError(t, err)
	assert.Equal(t, "#foo:example.org", r.Name())

	// Canonical alias takes precedence over a plain alias.
	_, err = r.ReceiveStateEvent(stateEvent(t, "m.room.canonical_alias", "", `{"alias":"#canon:example.org"}`))
	require.NoError(t, err)
	assert.Equal(t, "#canon:example.org", r.Name())

	// An explicit name beats everything.
	_, err = r.ReceiveStateEvent(stateEvent(t, "m.room.name", "", `{"name":"Explicit"}`))
	require.NoError(t, err)
	assert.Equal(t, "Explicit", r.Name())
}

func TestHeroesFallbackName(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))

	joined := 3
	r.SetRoomSummary(event.RoomSummary{
		Heroes:            []string{"@a:example.org", "@b:example.org"},
		JoinedMemberCount: &joined,
	})

	// total members = 3 (joined), heroes shown = 2, others = 3 - 1 - 2 = 0
	assert.Equal(t, "a, b", r.Name())

	joined = 5
	r.SetRoomSummary(event.RoomSummary{
		Heroes:            []string{"@a:example.org", "@b:example.org"},
		JoinedMemberCount: &joined,
	})
	assert.Equal(t, "a, b and 2 others", r.Name())
}

func TestSetRoomSummaryOnlyChangedOnDiff(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))
	joined := 2
	summary := event.RoomSummary{Heroes: []string{"@a:example.org"}, JoinedMemberCount: &joined}

	assert.True(t, r.SetRoomSummary(summary))
	assert.False(t, r.SetRoomSummary(summary))

	joined = 3
	assert.True(t, r.SetRoomSummary(event.RoomSummary{Heroes: []string{"@a:example.org"}, JoinedMemberCount: &joined}))
}

func TestPowerLevelsRefreshesMemberCache(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))

	_, err := r.ReceiveStateEvent(stateEvent(t, "m.room.member", "@alice:example.org", `{"membership":"join"}`))
	require.NoError(t, err)

	m, ok := r.Member("@alice:example.org")
	require.True(t, ok)
	assert.Equal(t, int64(0), m.Power)

	_, err = r.ReceiveStateEvent(stateEvent(t, "m.room.power_levels", "", `{"users":{"@alice:example.org":50},"users_default":0}`))
	require.NoError(t, err)

	m, ok = r.Member("@alice:example.org")
	require.True(t, ok)
	assert.Equal(t, int64(50), m.Power)
}

func TestMembershipUpsertReportsChangedOnlyOnDiff(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))

	changed, err := r.ReceiveStateEvent(stateEvent(t, "m.room.member", "@alice:example.org", `{"membership":"join","displayname":"Alice"}`))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.ReceiveStateEvent(stateEvent(t, "m.room.member", "@alice:example.org", `{"membership":"join","displayname":"Alice"}`))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = r.ReceiveStateEvent(stateEvent(t, "m.room.member", "@alice:example.org", `{"membership":"leave"}`))
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestIsEncryptedAndTombstone(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))
	assert.False(t, r.IsEncrypted())

	_, err := r.ReceiveStateEvent(stateEvent(t, "m.room.encryption", "", `{"algorithm":"m.megolm.v1.aes-sha2"}`))
	require.NoError(t, err)
	assert.True(t, r.IsEncrypted())

	_, ok := r.Tombstone()
	assert.False(t, ok)

	_, err = r.ReceiveStateEvent(stateEvent(t, "m.room.tombstone", "", `{"body":"upgraded","replacement_room":"!new:example.org"}`))
	require.NoError(t, err)

	tomb, ok := r.Tombstone()
	require.True(t, ok)
	assert.Equal(t, "!new:example.org", tomb.ReplacementRoom)
}

func TestReceiveTimelineEventOnlyAppliesStateEvents(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))

	msg := event.TimelineEvent{Envelope: event.Envelope{
		Type:    "m.room.message",
		Content: json.RawMessage(`{"msgtype":"m.text","body":"hi"}`),
	}}
	changed, err := r.ReceiveTimelineEvent(msg)
	require.NoError(t, err)
	assert.False(t, changed)

	sk := ""
	nameChange := event.TimelineEvent{Envelope: event.Envelope{
		Type:     "m.room.name",
		StateKey: &sk,
		Content:  json.RawMessage(`{"name":"From Timeline"}`),
	}}
	changed, err = r.ReceiveTimelineEvent(nameChange)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "From Timeline", r.Name())
}

func TestReceiveStrippedStateEvent(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))

	changed, err := r.ReceiveStrippedStateEvent(event.StrippedStateEvent{
		Type:     "m.room.name",
		StateKey: "",
		Sender:   "@alice:example.org",
		Content:  json.RawMessage(`{"name":"Invite Preview"}`),
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Invite Preview", r.Name())
}

func TestSetUnreadNoticeCount(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))

	assert.True(t, r.SetUnreadNoticeCount(event.UnreadNotifications{HighlightCount: 1, NotificationCount: 2}))
	assert.False(t, r.SetUnreadNoticeCount(event.UnreadNotifications{HighlightCount: 1, NotificationCount: 2}))
	assert.Equal(t, 1, r.UnreadNotificationCount().HighlightCount)
}

func TestReceiveStateEventUnknownTypeIsNoOp(t *testing.T) {
	r := New(mustRoomID(t, "!r:example.org"), mustUserID(t, "@me:example.org"))
	changed, err := r.ReceiveStateEvent(stateEvent(t, "m.room.custom.unused", "", `{"anything":true}`))
	require.NoError(t, err)
	assert.False(t, changed)
}

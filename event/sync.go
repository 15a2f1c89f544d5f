package event

import "encoding/json"

// SyncResponse is the top-level shape of a Matrix Client-Server GET
// /sync response. Like the rest of this package, it is wire-adjacent: a
// caller typically decodes a server response's bytes into this struct
// directly, but gomatrixbase never performs the HTTP round trip itself.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     SyncRooms    `json:"rooms"`
	Presence  EventsList   `json:"presence"`
	AccountData EventsList `json:"account_data"`
	ToDevice  EventsList   `json:"to_device"`
}

// EventsList is the common `{ "events": [...] }` envelope the sync
// response uses for flat event lists (presence, account_data, to_device,
// ephemeral).
type EventsList struct {
	Events []json.RawMessage `json:"events"`
}

// SyncRooms partitions the three room buckets of a sync response.
type SyncRooms struct {
	Join  map[string]SyncJoinedRoom  `json:"join"`
	Invite map[string]SyncInvitedRoom `json:"invite"`
	Leave map[string]SyncLeftRoom    `json:"leave"`
}

// SyncJoinedRoom is one entry under rooms.join.
type SyncJoinedRoom struct {
	State               EventsList          `json:"state"`
	Timeline            SyncTimeline        `json:"timeline"`
	Ephemeral           EventsList          `json:"ephemeral"`
	AccountData         EventsList          `json:"account_data"`
	UnreadNotifications UnreadNotifications `json:"unread_notifications"`
	Summary             RoomSummary         `json:"summary"`
}

// SyncTimeline is rooms.join.<room_id>.timeline.
type SyncTimeline struct {
	Events    []json.RawMessage `json:"events"`
	Limited   bool              `json:"limited"`
	PrevBatch string            `json:"prev_batch"`
}

// SyncInvitedRoom is one entry under rooms.invite.
type SyncInvitedRoom struct {
	InviteState EventsList `json:"invite_state"`
}

// SyncLeftRoom is one entry under rooms.leave.
type SyncLeftRoom struct {
	State    EventsList   `json:"state"`
	Timeline SyncTimeline `json:"timeline"`
}

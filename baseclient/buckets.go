package baseclient

import (
	"context"
	"sync"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/room"
)

// roomBucket is one of the three membership buckets (joined, invited,
// left) a Client tracks. Each bucket owns a single sync.RWMutex guarding
// its map — never a lock per Room, and never the Room's own lock
// together with the bucket lock at the same time. Callers take at most
// one bucket lock at once and always release it before touching a
// Room's lock or calling out to a Subscriber.
type roomBucket struct {
	mu    sync.RWMutex
	rooms map[event.RoomID]*room.Room
}

func newRoomBucket() *roomBucket {
	return &roomBucket{rooms: make(map[event.RoomID]*room.Room)}
}

func (b *roomBucket) get(roomID event.RoomID) (*room.Room, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rooms[roomID]
	return r, ok
}

func (b *roomBucket) list() []*room.Room {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*room.Room, 0, len(b.rooms))
	for _, r := range b.rooms {
		out = append(out, r)
	}
	return out
}

func (b *roomBucket) getOrCreate(roomID event.RoomID, ownerID event.UserID) *room.Room {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.rooms[roomID]; ok {
		return r
	}
	r := room.New(roomID, ownerID)
	b.rooms[roomID] = r
	return r
}

func (b *roomBucket) remove(roomID event.RoomID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rooms, roomID)
}

// getOrCreateJoinedRoom mirrors client.rs's get_or_create_joined_room:
// moving a room into the joined bucket removes any stale entry from the
// invited and left buckets, since a room can only ever be tracked in one
// bucket at a time (spec invariant: single-bucket membership).
func (c *Client) getOrCreateJoinedRoom(roomID event.RoomID) (*room.Room, error) {
	sess := c.Session()
	if sess.IsZero() {
		return nil, ErrNotLoggedIn
	}
	c.invited.remove(roomID)
	c.left.remove(roomID)
	return c.joined.getOrCreate(roomID, sess.UserID), nil
}

// getOrCreateInvitedRoom mirrors client.rs's get_or_create_invited_room.
// Like the other two helpers it evicts the room from both other buckets
// unconditionally, so the single-bucket invariant holds whatever order
// the server sends sections in.
func (c *Client) getOrCreateInvitedRoom(roomID event.RoomID) (*room.Room, error) {
	sess := c.Session()
	if sess.IsZero() {
		return nil, ErrNotLoggedIn
	}
	c.joined.remove(roomID)
	c.left.remove(roomID)
	return c.invited.getOrCreate(roomID, sess.UserID), nil
}

// getOrCreateLeftRoom mirrors client.rs's get_or_create_left_room.
func (c *Client) getOrCreateLeftRoom(roomID event.RoomID) (*room.Room, error) {
	sess := c.Session()
	if sess.IsZero() {
		return nil, ErrNotLoggedIn
	}
	c.invited.remove(roomID)
	c.joined.remove(roomID)
	return c.left.getOrCreate(roomID, sess.UserID), nil
}

// ForgetRoom removes a left room from the client's memory and its
// backing StateStore entirely.
func (c *Client) ForgetRoom(ctx context.Context, roomID event.RoomID) error {
	c.left.remove(roomID)
	if err := c.stateStore.DeleteRoom(ctx, roomID); err != nil {
		return &StoreError{Op: "ForgetRoom", Err: err}
	}
	return nil
}

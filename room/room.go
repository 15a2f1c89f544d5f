// Package room implements the per-room aggregate: membership roster,
// power levels, name/alias/avatar, encryption flag, unread counts, and
// tombstone. Each Room is guarded by its own sync.RWMutex so that reads of
// unrelated rooms never block on each other — the same "lock per value,
// not per collection" discipline dendrite applies to its rate limiter
// (internal/httputil/rate_limiting.go) and partial-state tracker
// (roomserver/internal/partialstate_tracker.go).
package room

import (
	"sync"

	"github.com/matrix-org/gomatrixbase/event"
)

// Room is the per-room aggregate. All mutation goes through the
// Receive*/Set* methods, which report whether any observable attribute
// changed so callers can gate persistence writes and notification
// coalescing.
type Room struct {
	mu sync.RWMutex

	id      event.RoomID
	ownerID event.UserID

	members map[string]*Member

	name            string
	canonicalAlias  string
	aliases         []string
	topic           string
	avatarURL       string
	joinRules       string
	powerLevels     event.PowerLevelsContent
	hasPowerLevels  bool
	encrypted       bool
	encryptionAlgo  string
	summary         event.RoomSummary
	unread          event.UnreadNotifications
	tombstone       *event.TombstoneContent
}

// New creates an empty Room for roomID. ownerID is the local user — it is
// never exposed as a member unless the server also sends a membership
// event for them. The Room stores it; name resolution does not use it.
func New(roomID event.RoomID, ownerID event.UserID) *Room {
	return &Room{
		id:      roomID,
		ownerID: ownerID,
		members: make(map[string]*Member),
	}
}

// ID returns the room's identifier.
func (r *Room) ID() event.RoomID {
	return r.id
}

// IsEncrypted reports whether an m.room.encryption state event has been
// observed for this room.
func (r *Room) IsEncrypted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.encrypted
}

// Name returns the room's resolved display name per Matrix CS spec
// precedence (see name.go).
func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveName()
}

// CanonicalAlias returns the room's canonical alias, if any.
func (r *Room) CanonicalAlias() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalAlias
}

// Aliases returns a copy of the room's known aliases.
func (r *Room) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.aliases))
	copy(out, r.aliases)
	return out
}

// Topic returns the room's topic.
func (r *Room) Topic() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topic
}

// AvatarURL returns the room's avatar mxc:// URL.
func (r *Room) AvatarURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.avatarURL
}

// JoinRules returns the room's join_rule.
func (r *Room) JoinRules() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.joinRules
}

// PowerLevels returns a copy of the room's power-levels content. The
// second return is false if no m.room.power_levels event has been seen.
func (r *Room) PowerLevels() (event.PowerLevelsContent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.powerLevels, r.hasPowerLevels
}

// Tombstone returns the room's tombstone content, if the room has been
// upgraded/replaced.
func (r *Room) Tombstone() (event.TombstoneContent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tombstone == nil {
		return event.TombstoneContent{}, false
	}
	return *r.tombstone, true
}

// Member returns the cached member record for userID, if known.
func (r *Room) Member(userID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[userID]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// Members returns a snapshot of every member this Room knows about.
func (r *Room) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	return out
}

// SetRoomSummary records the room's summary block (heroes + counts),
// used only for name-fallback computation. Reports changed=true only
// when the heroes or member counts actually differ from the cached
// summary.
func (r *Room) SetRoomSummary(summary event.RoomSummary) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if summaryEqual(r.summary, summary) {
		return false
	}
	// Copy the counts and heroes so a caller reusing its own variables
	// cannot change the cached summary behind the Room's back.
	r.summary = event.RoomSummary{Heroes: append([]string(nil), summary.Heroes...)}
	if summary.JoinedMemberCount != nil {
		n := *summary.JoinedMemberCount
		r.summary.JoinedMemberCount = &n
	}
	if summary.InvitedMemberCount != nil {
		n := *summary.InvitedMemberCount
		r.summary.InvitedMemberCount = &n
	}
	return true
}

// SetUnreadNoticeCount records the room's unread notification counts.
func (r *Room) SetUnreadNoticeCount(counts event.UnreadNotifications) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unread == counts {
		return false
	}
	r.unread = counts
	return true
}

// UnreadNotificationCount returns the room's cached unread counts.
func (r *Room) UnreadNotificationCount() event.UnreadNotifications {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unread
}

func summaryEqual(a, b event.RoomSummary) bool {
	if len(a.Heroes) != len(b.Heroes) {
		return false
	}
	for i := range a.Heroes {
		if a.Heroes[i] != b.Heroes[i] {
			return false
		}
	}
	ip := func(p *int) int {
		if p == nil {
			return -1
		}
		return *p
	}
	return ip(a.JoinedMemberCount) == ip(b.JoinedMemberCount) &&
		ip(a.InvitedMemberCount) == ip(b.InvitedMemberCount)
}

package event

import "encoding/json"

// Content payloads the room model and client orchestrator need to read.
// These intentionally only cover the fields this module actually consumes
// — the full Matrix event-content schema is gomatrixserverlib's concern.

type Membership string

const (
	MembershipJoin   Membership = "join"
	MembershipInvite Membership = "invite"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
	MembershipKnock  Membership = "knock"
)

type MemberContent struct {
	Membership  Membership `json:"membership"`
	DisplayName *string    `json:"displayname,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
}

type NameContent struct {
	Name string `json:"name"`
}

type TopicContent struct {
	Topic string `json:"topic"`
}

type CanonicalAliasContent struct {
	Alias      string   `json:"alias"`
	AltAliases []string `json:"alt_aliases,omitempty"`
}

type AliasesContent struct {
	Aliases []string `json:"aliases"`
}

type AvatarContent struct {
	URL string `json:"url"`
}

type JoinRulesContent struct {
	JoinRule string `json:"join_rule"`
}

type PowerLevelsContent struct {
	Users         map[string]int64 `json:"users,omitempty"`
	UsersDefault  int64            `json:"users_default"`
	Events        map[string]int64 `json:"events,omitempty"`
	EventsDefault int64            `json:"events_default"`
	StateDefault  int64            `json:"state_default"`
	Invite        int64            `json:"invite"`
	Kick          int64            `json:"kick"`
	Ban           int64            `json:"ban"`
	Redact        int64            `json:"redact"`
}

// PowerFor returns the effective power level for a user per the Matrix CS
// spec precedence: an explicit per-user entry, else users_default.
func (p PowerLevelsContent) PowerFor(userID string) int64 {
	if lvl, ok := p.Users[userID]; ok {
		return lvl
	}
	return p.UsersDefault
}

type TombstoneContent struct {
	Body            string `json:"body"`
	ReplacementRoom string `json:"replacement_room"`
}

type EncryptionContent struct {
	Algorithm string `json:"algorithm"`
}

type RedactionContent struct {
	Redacts string `json:"redacts"`
}

type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

type MessageFeedbackContent struct {
	Type   string `json:"type"`
	Target string `json:"target_event_id"`
}

// IgnoredUserListContent is m.ignored_user_list. On the wire,
// ignored_users is an object keyed by user id with empty values
// (`{"ignored_users": {"@alice:example.org": {}}}`), not an array;
// UnmarshalJSON flattens it to a slice since nothing here needs the
// per-user value.
type IgnoredUserListContent struct {
	IgnoredUsers []string
}

func (c *IgnoredUserListContent) UnmarshalJSON(data []byte) error {
	var wire struct {
		IgnoredUsers map[string]struct{} `json:"ignored_users"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.IgnoredUsers = make([]string, 0, len(wire.IgnoredUsers))
	for userID := range wire.IgnoredUsers {
		c.IgnoredUsers = append(c.IgnoredUsers, userID)
	}
	return nil
}

func (c IgnoredUserListContent) MarshalJSON() ([]byte, error) {
	wire := struct {
		IgnoredUsers map[string]struct{} `json:"ignored_users"`
	}{IgnoredUsers: make(map[string]struct{}, len(c.IgnoredUsers))}
	for _, userID := range c.IgnoredUsers {
		wire.IgnoredUsers[userID] = struct{}{}
	}
	return json.Marshal(wire)
}

// PushRuleset is deliberately left as a generic map: push rule trees are
// deep, server-defined, and the client never needs to interpret them —
// only store and forward them to a higher layer.
type PushRuleset map[string]any

type PushRulesContent struct {
	Global PushRuleset `json:"global"`
}

type FullyReadContent struct {
	EventID string `json:"event_id"`
}

// RoomSummary is the `summary` block of a joined-room sync entry, used
// only to compute a fallback display name when no m.room.name/alias is
// set.
type RoomSummary struct {
	Heroes            []string `json:"m.heroes,omitempty"`
	JoinedMemberCount  *int     `json:"m.joined_member_count,omitempty"`
	InvitedMemberCount *int     `json:"m.invited_member_count,omitempty"`
}

// UnreadNotifications mirrors the per-room unread_notifications block.
type UnreadNotifications struct {
	HighlightCount    int `json:"highlight_count"`
	NotificationCount int `json:"notification_count"`
}

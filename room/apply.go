package room

import (
	"github.com/matrix-org/gomatrixbase/event"
)

// ReceiveStateEvent applies a full state event (used for joined and left
// rooms, where the server sends complete state) and reports whether any
// observable attribute changed.
func (r *Room) ReceiveStateEvent(e event.StateEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyState(e.Type, e.StateKey, e.Content)
}

// ReceiveStrippedStateEvent applies reduced invite-preview state and
// reports whether any observable attribute changed.
func (r *Room) ReceiveStrippedStateEvent(e event.StrippedStateEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sk := e.StateKey
	return r.applyState(e.Type, &sk, e.Content)
}

// ReceiveTimelineEvent applies a timeline event that carries a state_key
// (membership changes, name, power levels, tombstone, ...) the same way
// ReceiveStateEvent does, and returns false for any event without one.
// m.room.redaction events carry no state_key, so redactions are not
// applied to the Room.
func (r *Room) ReceiveTimelineEvent(e event.TimelineEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !e.IsState() {
		return false, nil
	}
	return r.applyState(e.Type, e.StateKey, e.Content)
}

// ReceivePresenceEvent updates a member's cached presence-derived fields.
// Presence content itself is forwarded verbatim to subscribers; the room
// model does not currently cache presence beyond membership.
func (r *Room) ReceivePresenceEvent(_ event.PresenceEvent) bool {
	// Presence is a per-user, not per-room, state fragment; the source
	// treats it as informational only (no Room field it updates beyond
	// what membership already tracks), so this is a documented no-op
	// that still exists as an explicit operation per spec.md §4.1.
	return false
}

func (r *Room) applyState(eventType string, stateKey *string, content []byte) (bool, error) {
	switch eventType {
	case "m.room.name":
		var c event.NameContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		if r.name == c.Name {
			return false, nil
		}
		r.name = c.Name
		return true, nil

	case "m.room.canonical_alias":
		var c event.CanonicalAliasContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		if r.canonicalAlias == c.Alias {
			return false, nil
		}
		r.canonicalAlias = c.Alias
		return true, nil

	case "m.room.aliases":
		var c event.AliasesContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		if stringSliceEqual(r.aliases, c.Aliases) {
			return false, nil
		}
		r.aliases = c.Aliases
		return true, nil

	case "m.room.topic":
		var c event.TopicContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		if r.topic == c.Topic {
			return false, nil
		}
		r.topic = c.Topic
		return true, nil

	case "m.room.avatar":
		var c event.AvatarContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		if r.avatarURL == c.URL {
			return false, nil
		}
		r.avatarURL = c.URL
		return true, nil

	case "m.room.join_rules":
		var c event.JoinRulesContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		if r.joinRules == c.JoinRule {
			return false, nil
		}
		r.joinRules = c.JoinRule
		return true, nil

	case "m.room.power_levels":
		var c event.PowerLevelsContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		r.powerLevels = c
		r.hasPowerLevels = true
		r.refreshMemberPower()
		return true, nil

	case "m.room.encryption":
		var c event.EncryptionContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		changed := !r.encrypted || r.encryptionAlgo != c.Algorithm
		r.encrypted = true
		r.encryptionAlgo = c.Algorithm
		return changed, nil

	case "m.room.tombstone":
		var c event.TombstoneContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		r.tombstone = &c
		return true, nil

	case "m.room.member":
		if stateKey == nil {
			return false, nil
		}
		var c event.MemberContent
		if err := event.DecodeContent(content, eventType, &c); err != nil {
			return false, err
		}
		return r.upsertMember(*stateKey, c), nil

	default:
		return false, nil
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

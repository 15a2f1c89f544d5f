package room

import "github.com/matrix-org/gomatrixbase/event"

// Member is a per-user record within a Room: display name, avatar, cached
// power level, and membership state. The power field is refreshed
// whenever m.room.power_levels changes, so callers can answer
// authorization questions without re-walking state — matching client.rs's
// comment that power-level changes "update the per-member cached power
// field."
type Member struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	Power       int64
	Membership  event.Membership
}

func (r *Room) upsertMember(userID string, content event.MemberContent) bool {
	existing, had := r.members[userID]
	m := &Member{
		UserID:     userID,
		Membership: content.Membership,
	}
	if content.DisplayName != nil {
		m.DisplayName = *content.DisplayName
	}
	if content.AvatarURL != nil {
		m.AvatarURL = *content.AvatarURL
	}
	if had {
		m.Power = existing.Power
		if *m == *existing {
			return false
		}
	}
	r.members[userID] = m
	return true
}

// refreshMemberPower updates every cached member's Power field from the
// current power-levels content. Returns true if any member's cached power
// actually changed.
func (r *Room) refreshMemberPower() bool {
	changed := false
	for userID, m := range r.members {
		newPower := r.powerLevels.PowerFor(userID)
		if m.Power != newPower {
			m.Power = newPower
			changed = true
		}
	}
	return changed
}

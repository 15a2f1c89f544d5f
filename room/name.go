package room

import (
	"fmt"
	"strings"
)

// resolveName implements Matrix CS spec name-resolution precedence:
// explicit m.room.name, then canonical alias, then first alias, then a
// fallback computed from the room summary's heroes, then a generic
// fallback. Callers must already hold r.mu.
func (r *Room) resolveName() string {
	if r.name != "" {
		return r.name
	}
	if r.canonicalAlias != "" {
		return r.canonicalAlias
	}
	if len(r.aliases) > 0 {
		return r.aliases[0]
	}
	if len(r.summary.Heroes) > 0 {
		return r.heroesFallbackName()
	}
	return "Empty Room"
}

// heroesFallbackName builds a deterministic name from the room summary's
// heroes: the first two heroes' localparts joined with ", ", followed by
// "and N others" when the room has more members than heroes shown. This
// mirrors the two-hero-plus-count convention common Matrix clients use
// and is documented here as the resolved Open Question (see DESIGN.md).
func (r *Room) heroesFallbackName() string {
	heroes := r.summary.Heroes
	shown := heroes
	if len(shown) > 2 {
		shown = shown[:2]
	}

	names := make([]string, len(shown))
	for i, h := range shown {
		names[i] = localpart(h)
	}
	name := strings.Join(names, ", ")

	total := 0
	if r.summary.JoinedMemberCount != nil {
		total += *r.summary.JoinedMemberCount
	}
	if r.summary.InvitedMemberCount != nil {
		total += *r.summary.InvitedMemberCount
	}
	// total includes the local user; heroes do not.
	others := total - 1 - len(shown)
	if others > 0 {
		return fmt.Sprintf("%s and %d others", name, others)
	}
	return name
}

func localpart(userID string) string {
	if !strings.HasPrefix(userID, "@") {
		return userID
	}
	if idx := strings.IndexByte(userID, ':'); idx > 0 {
		return userID[1:idx]
	}
	return userID[1:]
}

package baseclient

import (
	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/event"
)

// handleIgnoredUsers applies an m.ignored_user_list event, mirroring
// client.rs's handle_ignored_users: compares against the cached list and
// reports changed only on an actual diff, so a repeated identical list
// doesn't trigger spurious persistence or Subscriber callbacks.
func (c *Client) handleIgnoredUsers(content event.IgnoredUserListContent) bool {
	c.ignoredUsersMu.Lock()
	defer c.ignoredUsersMu.Unlock()
	if stringSetEqual(c.ignoredUsers, content.IgnoredUsers) {
		return false
	}
	c.ignoredUsers = append([]string(nil), content.IgnoredUsers...)
	return true
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			return false
		}
	}
	return true
}

// handlePushRules applies an m.push_rules event. The source always
// reports changed=true here ("those don't change often" — its own
// comment documents the stub), and gomatrixbase keeps that behavior
// rather than diffing rulesets, since push rules have no natural
// equality check without a full semantic comparison of match criteria.
func (c *Client) handlePushRules(content event.PushRulesContent) bool {
	c.pushRulesetMu.Lock()
	defer c.pushRulesetMu.Unlock()
	c.pushRuleset = content.Global
	c.hasPushRules = true
	return true
}

// receiveAccountDataEvent dispatches one global account-data event by
// type, matching client.rs's receive_account_data_event match arms.
func (c *Client) receiveAccountDataEvent(ade event.AccountDataEvent) bool {
	switch ade.Type {
	case "m.ignored_user_list":
		var content event.IgnoredUserListContent
		if err := event.DecodeContent(ade.Content, ade.Type, &content); err != nil {
			log.WithError(err).Debug("baseclient: bad m.ignored_user_list content")
			return false
		}
		return c.handleIgnoredUsers(content)
	case "m.push_rules":
		var content event.PushRulesContent
		if err := event.DecodeContent(ade.Content, ade.Type, &content); err != nil {
			log.WithError(err).Debug("baseclient: bad m.push_rules content")
			return false
		}
		return c.handlePushRules(content)
	default:
		return false
	}
}

// receiveEphemeralEvent dispatches one room-scoped ephemeral event. Read
// receipts and typing notifications carry no room-model state in this
// client (they are forwarded to Subscribers as-is), so only the two
// event types the source itself special-cases — ignored users and push
// rules — can report a state change here; everything else is a no-op
// deliberately kept separate from receiveAccountDataEvent so an
// ephemeral-only Subscriber callback doesn't need to filter account-data
// traffic it was never sent (see DESIGN.md).
func (c *Client) receiveEphemeralEvent(ee event.EphemeralEvent) bool {
	switch ee.Type {
	case "m.ignored_user_list":
		var content event.IgnoredUserListContent
		if err := event.DecodeContent(ee.Content, ee.Type, &content); err != nil {
			return false
		}
		return c.handleIgnoredUsers(content)
	case "m.push_rules":
		var content event.PushRulesContent
		if err := event.DecodeContent(ee.Content, ee.Type, &content); err != nil {
			return false
		}
		return c.handlePushRules(content)
	default:
		return false
	}
}

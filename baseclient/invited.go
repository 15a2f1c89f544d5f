package baseclient

import (
	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/internal/metrics"
	"github.com/matrix-org/gomatrixbase/subscriber"
)

// iterInvitedRooms mirrors client.rs's iter_invited_rooms: invited rooms
// only ever carry stripped state, never a timeline, so there is no
// decrypt step and no account-data/ephemeral section to walk.
func (c *Client) iterInvitedRooms(resp *event.SyncResponse, result *foldResult) {
	for roomIDStr, ir := range resp.Rooms.Invite {
		roomID, err := event.ParseRoomID(roomIDStr)
		if err != nil {
			log.WithError(err).WithField("room_id", roomIDStr).Warn("baseclient: bad invited room id")
			continue
		}

		r, err := c.getOrCreateInvitedRoom(roomID)
		if err != nil {
			log.WithError(err).Warn("baseclient: cannot apply invited room without a session")
			return
		}

		changed := false
		var stateEvents []event.StateEvent
		for _, raw := range ir.InviteState.Events {
			sse, err := event.ParseStrippedStateEvent(raw)
			if err != nil {
				metrics.EventsDropped.WithLabelValues("deserialize").Inc()
				log.WithError(err).Debug("baseclient: dropping undeserializable stripped state event")
				continue
			}
			did, err := r.ReceiveStrippedStateEvent(sse)
			if err != nil {
				log.WithError(err).WithField("event_type", sse.Type).Debug("baseclient: stripped state apply error")
				continue
			}
			if did {
				changed = true
			}
			sk := sse.StateKey
			stateEvents = append(stateEvents, event.StateEvent{
				Envelope: event.Envelope{Type: sse.Type, StateKey: &sk, Sender: sse.Sender, Content: sse.Content},
			})
		}

		if changed {
			metrics.RoomsChanged.WithLabelValues("invited").Inc()
			result.markChanged(roomID, "invited")
		}

		result.updates = append(result.updates, subscriber.RoomUpdate{
			RoomID: roomID,
			Bucket: "invited",
			State:  stateEvents,
		})
	}
}

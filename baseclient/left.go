package baseclient

import (
	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/internal/metrics"
	"github.com/matrix-org/gomatrixbase/store"
	"github.com/matrix-org/gomatrixbase/subscriber"
)

// iterLeftRooms mirrors client.rs's iter_left_rooms. Left rooms get full
// state (not stripped) but, unlike joined rooms, the source never
// decrypts their timeline — a left room's megolm sessions are of no use
// once gomatrixbase stops tracking the room live, so this keeps that
// asymmetry rather than inventing decrypt support the source doesn't have.
func (c *Client) iterLeftRooms(resp *event.SyncResponse, result *foldResult) {
	for roomIDStr, lr := range resp.Rooms.Leave {
		roomID, err := event.ParseRoomID(roomIDStr)
		if err != nil {
			log.WithError(err).WithField("room_id", roomIDStr).Warn("baseclient: bad left room id")
			continue
		}

		r, err := c.getOrCreateLeftRoom(roomID)
		if err != nil {
			log.WithError(err).Warn("baseclient: cannot apply left room without a session")
			return
		}

		changed := false
		var stateEvents []event.StateEvent
		for _, raw := range lr.State.Events {
			se, err := event.ParseStateEvent(raw)
			if err != nil {
				metrics.EventsDropped.WithLabelValues("deserialize").Inc()
				continue
			}
			stateEvents = append(stateEvents, se)
			did, err := r.ReceiveStateEvent(se)
			if err != nil {
				log.WithError(err).WithField("event_type", se.Type).Debug("baseclient: state apply error")
				continue
			}
			if did {
				changed = true
			}
			sk := ""
			if se.StateKey != nil {
				sk = *se.StateKey
			}
			result.addDelta(roomID, store.StateKey{Type: se.Type, StateKey: sk}, raw)
		}

		var timelineEvents []event.TimelineEvent
		for _, raw := range lr.Timeline.Events {
			te, err := event.ParseTimelineEvent(raw)
			if err != nil {
				metrics.EventsDropped.WithLabelValues("deserialize").Inc()
				continue
			}
			timelineEvents = append(timelineEvents, te)
			did, err := r.ReceiveTimelineEvent(te)
			if err != nil {
				log.WithError(err).WithField("event_type", te.Type).Debug("baseclient: timeline apply error")
				continue
			}
			if did {
				changed = true
			}
		}

		if changed {
			metrics.RoomsChanged.WithLabelValues("left").Inc()
			result.markChanged(roomID, "left")
		}

		result.updates = append(result.updates, subscriber.RoomUpdate{
			RoomID:   roomID,
			Bucket:   "left",
			Timeline: timelineEvents,
			State:    stateEvents,
		})
	}
}

package baseclient

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/internal/metrics"
	"github.com/matrix-org/gomatrixbase/room"
	"github.com/matrix-org/gomatrixbase/store"
	"github.com/matrix-org/gomatrixbase/subscriber"
)

// foldResult accumulates what changed in a sync fold, keyed so the
// persistence and dispatch stages at the end of receive_sync_response
// don't need to re-walk the response.
type foldResult struct {
	changedRooms map[event.RoomID]string
	deltas       map[event.RoomID]map[store.StateKey]json.RawMessage
	updates      []subscriber.RoomUpdate
}

func newFoldResult() *foldResult {
	return &foldResult{
		changedRooms: make(map[event.RoomID]string),
		deltas:       make(map[event.RoomID]map[store.StateKey]json.RawMessage),
	}
}

func (f *foldResult) markChanged(roomID event.RoomID, bucket string) {
	f.changedRooms[roomID] = bucket
}

func (f *foldResult) addDelta(roomID event.RoomID, key store.StateKey, raw json.RawMessage) {
	d, ok := f.deltas[roomID]
	if !ok {
		d = make(map[store.StateKey]json.RawMessage)
		f.deltas[roomID] = d
	}
	d[key] = raw
}

// iterJoinedRooms mirrors client.rs's iter_joined_rooms: apply state,
// set the room summary and unread counts, apply and decrypt timeline
// events, apply room account-data, then dispatch the whole batch to
// Subscribers once the Room lock (held internally per ReceiveX call,
// never across this whole loop) has been released.
func (c *Client) iterJoinedRooms(ctx context.Context, resp *event.SyncResponse, result *foldResult) {
	for roomIDStr, jr := range resp.Rooms.Join {
		roomID, err := event.ParseRoomID(roomIDStr)
		if err != nil {
			log.WithError(err).WithField("room_id", roomIDStr).Warn("baseclient: bad joined room id")
			continue
		}

		r, err := c.getOrCreateJoinedRoom(roomID)
		if err != nil {
			log.WithError(err).Warn("baseclient: cannot apply joined room without a session")
			return
		}

		changed := false
		var stateEvents []event.StateEvent
		for _, raw := range jr.State.Events {
			se, err := event.ParseStateEvent(raw)
			if err != nil {
				metrics.EventsDropped.WithLabelValues("deserialize").Inc()
				log.WithError(err).Debug("baseclient: dropping undeserializable joined state event")
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

		if r.SetRoomSummary(jr.Summary) {
			changed = true
		}
		if r.SetUnreadNoticeCount(jr.UnreadNotifications) {
			changed = true
		}

		c.trackEncryptionMembers(ctx, r)

		var timelineEvents []event.TimelineEvent
		for _, raw := range jr.Timeline.Events {
			te, err := event.ParseTimelineEvent(raw)
			if err != nil {
				metrics.EventsDropped.WithLabelValues("deserialize").Inc()
				log.WithError(err).Debug("baseclient: dropping undeserializable joined timeline event")
				continue
			}
			te = c.decryptTimelineEvent(ctx, roomID, te)
			timelineEvents = append(timelineEvents, te)
			did, err := r.ReceiveTimelineEvent(te)
			if err != nil {
				log.WithError(err).WithField("event_type", te.Type).Debug("baseclient: timeline apply error")
				continue
			}
			if did {
				changed = true
			}
			if te.IsState() {
				sk := ""
				if te.StateKey != nil {
					sk = *te.StateKey
				}
				result.addDelta(roomID, store.StateKey{Type: te.Type, StateKey: sk}, raw)
			}
		}

		var ephemeralEvents []event.EphemeralEvent
		for _, raw := range jr.Ephemeral.Events {
			ee, err := event.ParseEphemeralEvent(raw)
			if err != nil {
				metrics.EventsDropped.WithLabelValues("deserialize").Inc()
				continue
			}
			ephemeralEvents = append(ephemeralEvents, ee)
			if c.receiveEphemeralEvent(ee) {
				changed = true
			}
		}

		for _, raw := range jr.AccountData.Events {
			ade, err := event.ParseAccountDataEvent(raw)
			if err != nil {
				metrics.EventsDropped.WithLabelValues("deserialize").Inc()
				continue
			}
			if err := c.stateStore.SaveRoomAccountData(ctx, roomID, ade.Type, ade.Content); err != nil {
				log.WithError(err).WithField("event_type", ade.Type).
					Warn("baseclient: failed to persist room account data")
			}
		}

		if changed {
			metrics.RoomsChanged.WithLabelValues("joined").Inc()
			result.markChanged(roomID, "joined")
		}

		result.updates = append(result.updates, subscriber.RoomUpdate{
			RoomID:    roomID,
			Bucket:    "joined",
			Timeline:  timelineEvents,
			State:     stateEvents,
			Ephemeral: ephemeralEvents,
		})
	}
}

func (c *Client) trackEncryptionMembers(ctx context.Context, r *room.Room) {
	if !r.IsEncrypted() {
		return
	}
	members := r.Members()
	userIDs := make([]string, len(members))
	for i, m := range members {
		userIDs[i] = m.UserID
	}
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	if err := c.crypto.ReceiveDeviceListUpdate(ctx, userIDs, nil); err != nil {
		log.WithError(err).Debug("baseclient: crypto engine device tracking update failed")
	}
}

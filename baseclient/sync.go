package baseclient

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/internal/metrics"
)

// ReceiveSyncResponse is the central fold: it applies one /sync response
// to client state, persists what changed, and dispatches notifications.
// This is the Go shape of client.rs's receive_sync_response, in the same
// ordering: idempotence check, cursor overwrite, to-device/crypto
// handling, then joined/invited/left rooms, then global account data,
// then the unconditional client-state persistence. A failed room or
// client-state write is returned as a *StoreError after the in-memory
// state has been updated and Subscribers notified.
//
// Concurrent calls are not serialized internally: callers must fold one
// response at a time.
func (c *Client) ReceiveSyncResponse(ctx context.Context, resp *event.SyncResponse) error {
	start := time.Now()
	err := c.receiveSyncResponse(ctx, resp)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SyncFoldDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	log.WithFields(log.Fields{
		"next_batch": resp.NextBatch,
		"outcome":    outcome,
		"duration":   time.Since(start),
	}).Debug("baseclient: sync fold complete")

	return err
}

func (c *Client) receiveSyncResponse(ctx context.Context, resp *event.SyncResponse) error {
	c.syncTokenMu.RLock()
	current := c.syncToken
	c.syncTokenMu.RUnlock()
	if current != "" && current == resp.NextBatch {
		return nil
	}

	c.syncTokenMu.Lock()
	c.syncToken = resp.NextBatch
	c.syncTokenMu.Unlock()

	toDeviceEvents := c.receiveToDeviceEvents(ctx, resp.ToDevice.Events)

	result := newFoldResult()
	c.iterJoinedRooms(ctx, resp, result)
	c.iterInvitedRooms(resp, result)
	c.iterLeftRooms(resp, result)

	for _, raw := range resp.AccountData.Events {
		ade, err := event.ParseAccountDataEvent(raw)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("deserialize").Inc()
			continue
		}
		c.receiveAccountDataEvent(ade)
		if err := c.stateStore.SaveAccountData(ctx, ade.Type, ade.Content); err != nil {
			log.WithError(err).WithField("event_type", ade.Type).
				Warn("baseclient: failed to persist global account data")
		}
		c.dispatcher.DispatchAccountData(ade.Type, ade.Content)
	}

	for _, raw := range resp.Presence.Events {
		pe, err := event.ParsePresenceEvent(raw)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("deserialize").Inc()
			continue
		}
		c.dispatcher.DispatchPresence(pe)
	}

	for _, tde := range toDeviceEvents {
		c.dispatcher.DispatchToDevice(tde)
	}

	var storeErr error
	if err := c.persistChangedRooms(ctx, result.changedRooms, result.deltas); err != nil {
		log.WithError(err).Warn("baseclient: failed to persist changed rooms")
		storeErr = err
	}
	if err := c.persistClientState(ctx, resp.NextBatch); err != nil {
		log.WithError(err).Warn("baseclient: failed to persist client state")
		if storeErr == nil {
			storeErr = err
		}
	}

	for _, update := range result.updates {
		c.dispatcher.DispatchRoomUpdate(update)
	}

	return storeErr
}

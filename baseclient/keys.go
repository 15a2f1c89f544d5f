package baseclient

import (
	"context"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/crypto"
	"github.com/matrix-org/gomatrixbase/event"
)

// decryptTimelineEvent hands an m.room.encrypted timeline event to the
// crypto engine. A CryptoError is expected and non-fatal: the event
// stays encrypted but is still returned for the fold and Subscribers to
// see, per the source's "decrypt and leave it alone on failure" policy
// (client.rs's receive_joined_timeline_event only swaps in the
// decrypted form on Ok).
func (c *Client) decryptTimelineEvent(ctx context.Context, roomID event.RoomID, te event.TimelineEvent) event.TimelineEvent {
	if !te.IsEncrypted() {
		return te
	}

	c.cryptoMu.Lock()
	dec, err := c.crypto.Decrypt(ctx, roomID.String(), te.Content)
	c.cryptoMu.Unlock()

	if err != nil {
		var cerr *crypto.CryptoError
		if !errors.As(err, &cerr) {
			log.WithError(err).WithField("room_id", roomID.String()).
				Error("baseclient: unexpected crypto engine error")
		}
		return te
	}

	splicedRaw, spliceErr := event.SpliceDecryptedContent(te.Raw, dec.Type, dec.Content)
	if spliceErr != nil {
		log.WithError(spliceErr).WithField("room_id", roomID.String()).
			Warn("baseclient: failed to splice decrypted content into raw envelope")
		splicedRaw = te.Raw
	}

	return te.WithDecrypted(event.TimelineEvent{
		Envelope: event.Envelope{
			Type:           dec.Type,
			Sender:         te.Sender,
			EventID:        te.EventID,
			OriginServerTS: te.OriginServerTS,
			Content:        dec.Content,
			RoomID:         roomID,
			Raw:            splicedRaw,
		},
	})
}

// ShouldUploadKeys reports whether the crypto engine has one-time or
// fallback keys pending upload to the homeserver.
func (c *Client) ShouldUploadKeys(ctx context.Context) bool {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.ShouldUploadKeys(ctx)
}

// ShouldShareGroupSession reports whether roomID's outbound megolm
// session needs (re)sharing before the next encrypted send.
func (c *Client) ShouldShareGroupSession(ctx context.Context, roomID event.RoomID) bool {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.ShouldShareGroupSession(ctx, roomID.String())
}

// ShouldQueryKeys reports whether the crypto engine has device lists it
// has never queried or has marked stale.
func (c *Client) ShouldQueryKeys(ctx context.Context) bool {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.ShouldQueryKeys(ctx)
}

// GetMissingSessions returns a /keys/claim request body for the members
// of userIDs the crypto engine has no usable Olm session for.
func (c *Client) GetMissingSessions(ctx context.Context, userIDs []string) (crypto.KeysClaimRequest, error) {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.GetMissingSessions(ctx, userIDs)
}

// ShareGroupSession returns the to-device payloads needed to distribute
// roomID's current outbound megolm session to members.
func (c *Client) ShareGroupSession(ctx context.Context, roomID event.RoomID, members []string) (crypto.ToDeviceRequest, error) {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.ShareGroupSession(ctx, roomID.String(), members)
}

// KeysForUpload returns the device/one-time/fallback keys the crypto
// engine wants uploaded via /keys/upload.
func (c *Client) KeysForUpload(ctx context.Context) (crypto.KeysUploadRequest, error) {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.KeysForUpload(ctx)
}

// UsersForKeyQuery returns the user ids the crypto engine wants queried
// via /keys/query.
func (c *Client) UsersForKeyQuery(ctx context.Context) ([]string, error) {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.UsersForKeyQuery(ctx)
}

// Encrypt returns the m.room.encrypted content for plaintext eventType/
// content in roomID, per the crypto engine's current outbound group
// session for that room.
func (c *Client) Encrypt(ctx context.Context, roomID event.RoomID, eventType string, content json.RawMessage) (json.RawMessage, error) {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.Encrypt(ctx, roomID.String(), eventType, content)
}

// ReceiveKeysUploadResponse folds a /keys/upload response back into the
// crypto engine's key database.
func (c *Client) ReceiveKeysUploadResponse(ctx context.Context, resp crypto.KeysUploadResponse) error {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.ReceiveKeysUploadResponse(ctx, resp)
}

// ReceiveKeysClaimResponse folds a /keys/claim response back into the
// crypto engine's key database.
func (c *Client) ReceiveKeysClaimResponse(ctx context.Context, resp crypto.KeysClaimResponse) error {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.ReceiveKeysClaimResponse(ctx, resp)
}

// ReceiveKeysQueryResponse folds a /keys/query response back into the
// crypto engine's key database.
func (c *Client) ReceiveKeysQueryResponse(ctx context.Context, resp crypto.KeysQueryResponse) error {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()
	return c.crypto.ReceiveKeysQueryResponse(ctx, resp)
}

// receiveToDeviceEvents forwards every to-device event in a sync
// response to the crypto engine and returns the parsed events, which
// receiveSyncResponse later dispatches to the Subscriber. This is the Go analogue of the olm.receive_sync_response call the
// source makes before folding room data, kept as its own step since
// gomatrixbase's Engine interface takes one event at a time rather than
// a whole response.
func (c *Client) receiveToDeviceEvents(ctx context.Context, raws []json.RawMessage) []event.ToDeviceEvent {
	var out []event.ToDeviceEvent
	for _, raw := range raws {
		tde, err := event.ParseToDeviceEvent(raw)
		if err != nil {
			log.WithError(err).Debug("baseclient: dropping undeserializable to-device event")
			continue
		}
		c.cryptoMu.Lock()
		err = c.crypto.ReceiveToDeviceEvent(ctx, tde.Sender, tde.Type, tde.Content)
		c.cryptoMu.Unlock()
		if err != nil {
			log.WithError(err).WithField("event_type", tde.Type).
				Debug("baseclient: crypto engine rejected to-device event")
		}
		out = append(out, tde)
	}
	return out
}

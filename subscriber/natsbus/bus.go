// Package natsbus publishes room updates to a NATS JetStream subject so
// out-of-process listeners can subscribe the way dendrite's own
// components consume each other's output streams (syncapi/consumers).
// gomatrixbase only ever publishes here — unlike dendrite's consumers,
// nothing in this module consumes its own bus traffic back.
package natsbus

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/subscriber"
)

// Subject is the JetStream subject room updates are published to.
const Subject = "GOMATRIXBASE.room_update"

// Bus publishes subscriber.RoomUpdate values to a JetStream subject. It
// implements subscriber.Subscriber so it can be registered on a
// Dispatcher; a Dispatcher holds one Subscriber, so registering a Bus
// replaces any in-process subscriber installed before it. Each published
// message carries only the room id and bucket. Only OnRoomUpdate
// produces traffic, the other callbacks are no-ops since no spec
// component currently needs account-data/presence/to-device fan-out
// across process boundaries.
type Bus struct {
	js     nats.JetStreamContext
	stream string
}

var _ subscriber.Subscriber = (*Bus)(nil)

// Connect dials natsURL, ensures the backing stream exists, and returns a
// Bus ready to publish. stream is the JetStream stream name; a stream
// created here captures the fixed Subject, whatever stream is called.
func Connect(natsURL, stream string) (*Bus, error) {
	nc, err := nats.Connect(natsURL, nats.Name("gomatrixbase-"+uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("natsbus: jetstream context: %w", err)
	}
	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{Subject},
		})
		if err != nil {
			return nil, fmt.Errorf("natsbus: add stream: %w", err)
		}
	}
	return &Bus{js: js, stream: stream}, nil
}

type wireRoomUpdate struct {
	RoomID string `json:"room_id"`
	Bucket string `json:"bucket"`
}

func (b *Bus) OnRoomUpdate(update subscriber.RoomUpdate) {
	payload, err := json.Marshal(wireRoomUpdate{
		RoomID: update.RoomID.String(),
		Bucket: update.Bucket,
	})
	if err != nil {
		log.WithError(err).Error("natsbus: marshal room update")
		return
	}
	if _, err := b.js.Publish(Subject, payload); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"room_id": update.RoomID.String(),
			"bucket":  update.Bucket,
		}).Error("natsbus: publish room update")
	}
}

func (b *Bus) OnAccountData(string, []byte)        {}
func (b *Bus) OnPresence(event.PresenceEvent)      {}
func (b *Bus) OnToDevice(event.ToDeviceEvent)      {}

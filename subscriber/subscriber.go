// Package subscriber implements the client's outward-facing event
// notification boundary: the fan-out from "state changed" to "every
// interested listener heard about it", without the state machine ever
// holding a lock while it calls out. This is the Go shape of
// matrix_sdk_base's EventEmitter trait (client.rs's emit_* methods).
package subscriber

import (
	"sync"

	"github.com/matrix-org/gomatrixbase/event"
)

// RoomUpdate describes what changed in one room during a single sync
// fold, batched so a subscriber sees one notification per room per sync
// rather than one per event.
type RoomUpdate struct {
	RoomID event.RoomID
	Bucket string // "joined", "invited", "left"
	// Timeline holds the room's timeline events for this fold. An
	// encrypted event's Type/Content still read "m.room.encrypted" and
	// ciphertext here — call Decrypted() on the event to get the
	// plaintext type/content the crypto engine recovered, if any.
	Timeline  []event.TimelineEvent
	State     []event.StateEvent
	Ephemeral []event.EphemeralEvent
}

// Subscriber receives fan-out notifications from a Client. Every method
// must return quickly. The dispatch loop holds no room, bucket or
// session lock while calling these, so a callback may read from the
// Client (look up a Room, read its name or members); a Subscriber
// blocking for a long time still blocks the fold that produced the
// update.
type Subscriber interface {
	// OnRoomUpdate fires once per room present in a sync response,
	// whether or not that room's state changed.
	OnRoomUpdate(update RoomUpdate)
	// OnAccountData fires once per global account-data event.
	OnAccountData(eventType string, content []byte)
	// OnPresence fires once per presence event in a sync fold.
	OnPresence(event event.PresenceEvent)
	// OnToDevice fires once per to-device event in a sync fold.
	OnToDevice(event event.ToDeviceEvent)
}

// Dispatcher fans a sync fold's results out to at most one installed
// Subscriber. It holds its own lock only while swapping the subscriber
// slot, never while invoking a callback. This mirrors matrix_sdk_base's
// single event_emitter slot (Arc<RwLock<Option<Box<dyn EventEmitter>>>>):
// registering a new Subscriber silently displaces whatever was
// installed before it, it does not add a second listener.
type Dispatcher struct {
	mu     sync.RWMutex
	sub    Subscriber
	handle Handle
}

// NewDispatcher returns a Dispatcher with no Subscriber installed.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Handle identifies the currently installed Subscriber so Unregister
// can confirm it still owns the slot before clearing it. A Handle
// returned by an earlier Register that has since been displaced by a
// later Register is inert.
type Handle int

// Register installs sub as the Dispatcher's sole Subscriber, replacing
// whatever was installed before it, and returns a Handle for later
// Unregister.
func (d *Dispatcher) Register(sub Subscriber) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handle++
	d.sub = sub
	return d.handle
}

// Unregister clears the installed Subscriber if h still refers to it.
// It is a no-op if the slot is already empty or has since been
// replaced by a later Register.
func (d *Dispatcher) Unregister(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil && h == d.handle {
		d.sub = nil
	}
}

func (d *Dispatcher) current() Subscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sub
}

// DispatchRoomUpdate delivers update to the installed Subscriber, if
// any. The subscriber slot is read under lock and then the lock is
// released before the callback runs.
func (d *Dispatcher) DispatchRoomUpdate(update RoomUpdate) {
	if s := d.current(); s != nil {
		s.OnRoomUpdate(update)
	}
}

// DispatchAccountData delivers an account-data event to the installed
// Subscriber, if any.
func (d *Dispatcher) DispatchAccountData(eventType string, content []byte) {
	if s := d.current(); s != nil {
		s.OnAccountData(eventType, content)
	}
}

// DispatchPresence delivers a presence event to the installed
// Subscriber, if any.
func (d *Dispatcher) DispatchPresence(e event.PresenceEvent) {
	if s := d.current(); s != nil {
		s.OnPresence(e)
	}
}

// DispatchToDevice delivers a to-device event to the installed
// Subscriber, if any.
func (d *Dispatcher) DispatchToDevice(e event.ToDeviceEvent) {
	if s := d.current(); s != nil {
		s.OnToDevice(e)
	}
}

package subscriber

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/matrix-org/gomatrixbase/event"
)

type fakeSubscriber struct {
	mu      sync.Mutex
	updates int
	onRoomUpdate func()
}

func (f *fakeSubscriber) OnRoomUpdate(RoomUpdate) {
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	if f.onRoomUpdate != nil {
		f.onRoomUpdate()
	}
}
func (f *fakeSubscriber) OnAccountData(string, []byte)   {}
func (f *fakeSubscriber) OnPresence(event.PresenceEvent) {}
func (f *fakeSubscriber) OnToDevice(event.ToDeviceEvent) {}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func TestRegisterReplacesThePreviousSubscriber(t *testing.T) {
	d := NewDispatcher()
	a := &fakeSubscriber{}
	b := &fakeSubscriber{}
	d.Register(a)
	d.Register(b)

	d.DispatchRoomUpdate(RoomUpdate{Bucket: "joined"})

	assert.Equal(t, 0, a.count(), "registering b must displace a, not add a second listener")
	assert.Equal(t, 1, b.count())
}

func TestUnregisterStopsFutureDispatch(t *testing.T) {
	d := NewDispatcher()
	a := &fakeSubscriber{}
	h := d.Register(a)

	d.DispatchRoomUpdate(RoomUpdate{})
	assert.Equal(t, 1, a.count())

	d.Unregister(h)
	d.DispatchRoomUpdate(RoomUpdate{})
	assert.Equal(t, 1, a.count(), "unregistered subscriber must not receive further updates")
}

func TestUnregisterUnknownHandleIsNoOp(t *testing.T) {
	d := NewDispatcher()
	assert.NotPanics(t, func() {
		d.Unregister(Handle(999))
	})
}

// TestDispatchDoesNotHoldLockDuringCallback proves the single most
// important invariant of the dispatcher: a Subscriber callback can
// register or unregister another Subscriber (which takes d.mu) without
// deadlocking, because DispatchRoomUpdate reads the subscriber slot and
// releases d.mu before invoking the callback.
func TestDispatchDoesNotHoldLockDuringCallback(t *testing.T) {
	d := NewDispatcher()
	done := make(chan struct{})
	a := &fakeSubscriber{}
	a.onRoomUpdate = func() {
		d.Register(&fakeSubscriber{})
		close(done)
	}
	d.Register(a)

	d.DispatchRoomUpdate(RoomUpdate{})

	select {
	case <-done:
	default:
		t.Fatal("callback did not run or deadlocked registering a new subscriber")
	}
}

func TestDispatchAccountDataAndPresenceAndToDevice(t *testing.T) {
	d := NewDispatcher()
	var gotType string
	var gotPresence event.PresenceEvent
	var gotToDevice event.ToDeviceEvent

	sub := &recordingAllSubscriber{
		onAccountData: func(t string, _ []byte) { gotType = t },
		onPresence:    func(p event.PresenceEvent) { gotPresence = p },
		onToDevice:    func(e event.ToDeviceEvent) { gotToDevice = e },
	}
	d.Register(sub)

	d.DispatchAccountData("m.push_rules", []byte(`{}`))
	d.DispatchPresence(event.PresenceEvent{Sender: "@alice:example.org"})
	d.DispatchToDevice(event.ToDeviceEvent{Type: "m.room_key", Sender: "@bob:example.org"})

	assert.Equal(t, "m.push_rules", gotType)
	assert.Equal(t, "@alice:example.org", gotPresence.Sender)
	assert.Equal(t, "@bob:example.org", gotToDevice.Sender)
}

type recordingAllSubscriber struct {
	onAccountData func(string, []byte)
	onPresence    func(event.PresenceEvent)
	onToDevice    func(event.ToDeviceEvent)
}

func (r *recordingAllSubscriber) OnRoomUpdate(RoomUpdate) {}
func (r *recordingAllSubscriber) OnAccountData(t string, c []byte) {
	if r.onAccountData != nil {
		r.onAccountData(t, c)
	}
}
func (r *recordingAllSubscriber) OnPresence(e event.PresenceEvent) {
	if r.onPresence != nil {
		r.onPresence(e)
	}
}
func (r *recordingAllSubscriber) OnToDevice(e event.ToDeviceEvent) {
	if r.onToDevice != nil {
		r.onToDevice(e)
	}
}

package baseclient

import "github.com/pkg/errors"

// ErrRoomNotFound is returned by operations that need an already-tracked
// room (joined, invited, or left) but the given room id is in none of
// the three buckets.
var ErrRoomNotFound = errors.New("baseclient: room not found")

// StoreError wraps a failure returned by the Client's StateStore. The
// room/session state machine transition the error occurred during has
// already been applied in memory; only the durable write failed, so
// callers typically log and retry rather than unwind the whole fold.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "baseclient: " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

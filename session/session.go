// Package session holds the authenticated identity of a gomatrixbase
// Client: user id, device id, access token. A Session is immutable once
// constructed and is replaced wholesale on re-login, never mutated
// in-place — matching matrix_sdk_base's Session, which client.rs always
// assigns fresh via `*self.session.write().await = Some(session)`.
package session

import (
	"fmt"

	"github.com/matrix-org/gomatrixbase/event"
)

// Session is the authenticated identity: user id, device id, access
// token. Lifetime spans from login to explicit logout or process exit.
type Session struct {
	UserID      event.UserID
	DeviceID    event.DeviceID
	AccessToken string
}

// IsZero reports whether s is the zero value, i.e. no login has happened.
func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.DeviceID == ""
}

// String never prints AccessToken: it is the one field in this module
// that must never reach a log line.
func (s Session) String() string {
	return fmt.Sprintf("Session{UserID: %s, DeviceID: %s}", s.UserID.String(), s.DeviceID)
}

package baseclient

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/session"
)

// LoginResponse is the subset of a successful POST /login response the
// client state machine needs.
type LoginResponse struct {
	UserID      event.UserID
	DeviceID    event.DeviceID
	AccessToken string
}

// ReceiveLoginResponse stores the session carried by a successful login
// response, replacing whatever session (if any) was active before. The
// source always assigns a fresh Session rather than mutating fields in
// place; this does the same.
func (c *Client) ReceiveLoginResponse(ctx context.Context, resp LoginResponse) error {
	sess := session.Session{
		UserID:      resp.UserID,
		DeviceID:    resp.DeviceID,
		AccessToken: resp.AccessToken,
	}

	c.sessionMu.Lock()
	c.session = sess
	c.sessionMu.Unlock()

	if c.cryptoFactory != nil {
		c.cryptoMu.Lock()
		c.crypto = c.cryptoFactory(sess.UserID, sess.DeviceID)
		c.cryptoMu.Unlock()
	}

	if err := c.stateStore.SaveSession(ctx, &sess); err != nil {
		log.WithError(err).WithField("user_id", sess.UserID.String()).
			Error("baseclient: failed to persist session after login")
		return &StoreError{Op: "ReceiveLoginResponse", Err: err}
	}

	log.WithField("user_id", sess.UserID.String()).Debug("baseclient: received login response")
	return nil
}

// Logout clears the active session both in memory and in the backing
// StateStore.
func (c *Client) Logout(ctx context.Context) error {
	c.sessionMu.Lock()
	c.session = session.Session{}
	c.sessionMu.Unlock()

	if err := c.stateStore.SaveSession(ctx, nil); err != nil {
		return &StoreError{Op: "Logout", Err: err}
	}
	return nil
}

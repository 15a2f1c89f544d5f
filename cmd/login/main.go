// Command login is a minimal illustrative client, ported from
// matrix_sdk/examples/login.rs: it logs in with a username/password,
// installs a Subscriber that prints incoming room messages, and long-
// polls /sync forever. It is deliberately outside gomatrixbase's core —
// the core issues no HTTP of its own (spec.md §1) — so this is the
// thinnest possible transport shim a real caller would write instead.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/matrix-org/gomatrixbase/baseclient"
	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/subscriber"
)

type loginRequest struct {
	Type       string             `json:"type"`
	Identifier loginIdentifier    `json:"identifier"`
	Password   string             `json:"password"`
	DeviceID   string             `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

type loginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"access_token"`
}

// printingSubscriber prints every m.room.message timeline event from a
// joined room, mirroring login.rs's EventCallback.on_room_message.
type printingSubscriber struct {
	client *baseclient.Client
}

var _ subscriber.Subscriber = printingSubscriber{}

func (s printingSubscriber) OnRoomUpdate(update subscriber.RoomUpdate) {
	if update.Bucket != "joined" {
		return
	}
	r, ok := s.client.JoinedRoom(update.RoomID)
	if !ok {
		return
	}
	for _, te := range update.Timeline {
		decrypted, _ := te.Decrypted()
		if decrypted.Type != "m.room.message" {
			continue
		}
		var content event.MessageContent
		if err := event.DecodeContent(decrypted.Content, decrypted.Type, &content); err != nil {
			continue
		}
		name := decrypted.Sender
		// Any read of the room is held for the shortest time possible
		// to avoid deadlocking against the dispatcher, which has
		// already released every lock by the time this callback runs.
		if m, ok := r.Member(decrypted.Sender); ok && m.DisplayName != "" {
			name = m.DisplayName
		}
		fmt.Printf("%s: %s\n", name, content.Body)
	}
}

func (printingSubscriber) OnAccountData(string, []byte)         {}
func (printingSubscriber) OnPresence(event.PresenceEvent)       {}
func (printingSubscriber) OnToDevice(event.ToDeviceEvent)       {}

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: %s <homeserver_url> <username> <password>\n", os.Args[0])
		os.Exit(1)
	}
	homeserverURL, username, password := os.Args[1], os.Args[2], os.Args[3]

	if _, err := url.Parse(homeserverURL); err != nil {
		log.WithError(err).Fatal("login: couldn't parse the homeserver URL")
	}

	client := baseclient.New()
	client.Subscribe(printingSubscriber{client: client})

	ctx := context.Background()
	resp, err := doLogin(ctx, homeserverURL, username, password)
	if err != nil {
		log.WithError(err).Fatal("login: request failed")
	}
	if err := client.ReceiveLoginResponse(ctx, *resp); err != nil {
		log.WithError(err).Fatal("login: failed to record session")
	}
	log.WithField("user_id", resp.UserID.String()).Info("login: logged in")

	syncForever(ctx, client, homeserverURL)
}

func doLogin(ctx context.Context, homeserverURL, username, password string) (*baseclient.LoginResponse, error) {
	body, err := json.Marshal(loginRequest{
		Type:                     "m.login.password",
		Identifier:               loginIdentifier{Type: "m.id.user", User: username},
		Password:                 password,
		InitialDeviceDisplayName: "gomatrixbase",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		homeserverURL+"/_matrix/client/r0/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login: homeserver returned %s", httpResp.Status)
	}

	var lr loginResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&lr); err != nil {
		return nil, err
	}

	userID, err := event.ParseUserID(lr.UserID)
	if err != nil {
		return nil, err
	}
	return &baseclient.LoginResponse{
		UserID:      userID,
		DeviceID:    event.DeviceID(lr.DeviceID),
		AccessToken: lr.AccessToken,
	}, nil
}

// syncForever long-polls GET /sync and folds every response into
// client, the Go analogue of sync_forever(SyncSettings::new(), |_| {}).
func syncForever(ctx context.Context, client *baseclient.Client, homeserverURL string) {
	for {
		resp, err := doSync(ctx, client, homeserverURL)
		if err != nil {
			log.WithError(err).Warn("login: sync request failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		if err := client.ReceiveSyncResponse(ctx, resp); err != nil {
			log.WithError(err).Warn("login: failed to fold sync response")
		}
	}
}

func doSync(ctx context.Context, client *baseclient.Client, homeserverURL string) (*event.SyncResponse, error) {
	q := url.Values{}
	q.Set("timeout", "30000")
	if token := client.SyncToken(); token != "" {
		q.Set("since", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		homeserverURL+"/_matrix/client/r0/sync?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+client.Session().AccessToken)

	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login: sync returned %s", httpResp.Status)
	}

	var resp event.SyncResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

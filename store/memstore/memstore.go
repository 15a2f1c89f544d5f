// Package memstore is a dependency-free, in-memory StateStore used by
// tests and as the default store for a Client that doesn't need
// durability across process restarts.
package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/session"
	"github.com/matrix-org/gomatrixbase/store"
)

// Store is a StateStore backed entirely by in-process maps, guarded by a
// single mutex. It makes no attempt at fine-grained locking since its own
// purpose is to be a cheap reference double, not a production backend.
type Store struct {
	mu sync.Mutex

	session   session.Session
	syncToken string

	rooms map[event.RoomID]*roomEntry

	accountData  map[string]json.RawMessage
	ignoredUsers []string
}

type roomEntry struct {
	bucket          string
	state           map[store.StateKey]json.RawMessage
	roomAccountData map[string]json.RawMessage
	summary         json.RawMessage
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rooms:       make(map[event.RoomID]*roomEntry),
		accountData: make(map[string]json.RawMessage),
	}
}

var _ store.StateStore = (*Store)(nil)

func (s *Store) SaveSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess == nil {
		s.session = session.Session{}
		return nil
	}
	s.session = *sess
	return nil
}

func (s *Store) LoadSession(context.Context) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, nil
}

func (s *Store) SaveSyncToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncToken = token
	return nil
}

func (s *Store) LoadSyncToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncToken, nil
}

func (s *Store) SaveRoomState(_ context.Context, roomID event.RoomID, bucket string, delta map[store.StateKey]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[roomID]
	if !ok {
		entry = &roomEntry{state: make(map[store.StateKey]json.RawMessage), roomAccountData: make(map[string]json.RawMessage)}
		s.rooms[roomID] = entry
	}
	entry.bucket = bucket
	for k, v := range delta {
		if v == nil {
			delete(entry.state, k)
			continue
		}
		entry.state[k] = v
	}
	return nil
}

func (s *Store) LoadRoomState(context.Context) (map[event.RoomID]store.RoomSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[event.RoomID]store.RoomSnapshot, len(s.rooms))
	for id, entry := range s.rooms {
		stateCopy := make(map[store.StateKey]json.RawMessage, len(entry.state))
		for k, v := range entry.state {
			stateCopy[k] = v
		}
		out[id] = store.RoomSnapshot{
			RoomID:  id,
			Bucket:  entry.bucket,
			State:   stateCopy,
			Summary: entry.summary,
		}
	}
	return out, nil
}

func (s *Store) DeleteRoom(_ context.Context, roomID event.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

func (s *Store) SaveAccountData(_ context.Context, eventType string, content json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountData[eventType] = content
	if eventType == "m.ignored_user_list" {
		var c struct {
			IgnoredUsers map[string]struct{} `json:"ignored_users"`
		}
		if err := json.Unmarshal(content, &c); err == nil {
			users := make([]string, 0, len(c.IgnoredUsers))
			for u := range c.IgnoredUsers {
				users = append(users, u)
			}
			s.ignoredUsers = users
		}
	}
	return nil
}

func (s *Store) SaveRoomAccountData(_ context.Context, roomID event.RoomID, eventType string, content json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[roomID]
	if !ok {
		entry = &roomEntry{state: make(map[store.StateKey]json.RawMessage), roomAccountData: make(map[string]json.RawMessage)}
		s.rooms[roomID] = entry
	}
	entry.roomAccountData[eventType] = content
	return nil
}

func (s *Store) LoadIgnoredUsers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ignoredUsers))
	copy(out, s.ignoredUsers)
	return out, nil
}

func (s *Store) LoadAccountData(_ context.Context, eventType string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.accountData[eventType]
	return content, ok, nil
}

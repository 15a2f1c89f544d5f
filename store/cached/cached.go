// Package cached wraps any store.StateStore with a ristretto read-through
// cache for LoadRoomState, the one call a resumed sync makes once but
// that a long-lived process may want warmed. Writes always go straight to
// the wrapped store and invalidate the cache entry; gomatrixbase never
// serves a stale read authoritatively, it just avoids repeat decode cost.
package cached

import (
	"context"
	"encoding/json"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/session"
	"github.com/matrix-org/gomatrixbase/store"
)

const roomStateCacheKey = "room-state-snapshot"

// Store decorates a store.StateStore with an in-process ristretto cache.
type Store struct {
	inner store.StateStore
	cache *ristretto.Cache
}

var _ store.StateStore = (*Store)(nil)

// New wraps inner with a cache sized for maxCost bytes (ristretto cost
// units, typically bytes of the cached value).
func New(inner store.StateStore, maxCost int64) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost / 100 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "construct ristretto cache")
	}
	return &Store{inner: inner, cache: cache}, nil
}

func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	return s.inner.SaveSession(ctx, sess)
}

func (s *Store) LoadSession(ctx context.Context) (session.Session, error) {
	return s.inner.LoadSession(ctx)
}

func (s *Store) SaveSyncToken(ctx context.Context, token string) error {
	return s.inner.SaveSyncToken(ctx, token)
}

func (s *Store) LoadSyncToken(ctx context.Context) (string, error) {
	return s.inner.LoadSyncToken(ctx)
}

func (s *Store) SaveRoomState(ctx context.Context, roomID event.RoomID, bucket string, delta map[store.StateKey]json.RawMessage) error {
	if err := s.inner.SaveRoomState(ctx, roomID, bucket, delta); err != nil {
		return err
	}
	s.cache.Del(roomStateCacheKey)
	return nil
}

func (s *Store) LoadRoomState(ctx context.Context) (map[event.RoomID]store.RoomSnapshot, error) {
	if cached, ok := s.cache.Get(roomStateCacheKey); ok {
		return cached.(map[event.RoomID]store.RoomSnapshot), nil
	}
	snapshots, err := s.inner.LoadRoomState(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(roomStateCacheKey, snapshots, int64(len(snapshots))+1)
	s.cache.Wait()
	return snapshots, nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID event.RoomID) error {
	if err := s.inner.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	s.cache.Del(roomStateCacheKey)
	return nil
}

func (s *Store) SaveAccountData(ctx context.Context, eventType string, content json.RawMessage) error {
	return s.inner.SaveAccountData(ctx, eventType, content)
}

func (s *Store) SaveRoomAccountData(ctx context.Context, roomID event.RoomID, eventType string, content json.RawMessage) error {
	return s.inner.SaveRoomAccountData(ctx, roomID, eventType, content)
}

func (s *Store) LoadIgnoredUsers(ctx context.Context) ([]string, error) {
	return s.inner.LoadIgnoredUsers(ctx)
}

func (s *Store) LoadAccountData(ctx context.Context, eventType string) (json.RawMessage, bool, error) {
	return s.inner.LoadAccountData(ctx, eventType)
}

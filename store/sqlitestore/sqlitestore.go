// Package sqlitestore is a StateStore backed by mattn/go-sqlite3. Schema
// and prepared-statement layout follow dendrite's userapi/storage/sqlite3
// convention: one schema constant per table, statements prepared once at
// construction and reused for the life of the store.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/matrix-org/gomatrixbase/event"
	"github.com/matrix-org/gomatrixbase/session"
	"github.com/matrix-org/gomatrixbase/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS gomatrixbase_session (
    id INTEGER PRIMARY KEY CHECK (id = 0),
    user_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    access_token TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS gomatrixbase_sync_token (
    id INTEGER PRIMARY KEY CHECK (id = 0),
    token TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS gomatrixbase_room_state (
    room_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    state_key TEXT NOT NULL,
    content BLOB NOT NULL,
    PRIMARY KEY (room_id, event_type, state_key)
);
CREATE TABLE IF NOT EXISTS gomatrixbase_room_bucket (
    room_id TEXT PRIMARY KEY,
    bucket TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS gomatrixbase_account_data (
    event_type TEXT PRIMARY KEY,
    content BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS gomatrixbase_room_account_data (
    room_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    content BLOB NOT NULL,
    PRIMARY KEY (room_id, event_type)
);
`

const (
	upsertSessionSQL    = `INSERT INTO gomatrixbase_session (id, user_id, device_id, access_token) VALUES (0, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, device_id=excluded.device_id, access_token=excluded.access_token`
	clearSessionSQL     = `DELETE FROM gomatrixbase_session WHERE id = 0`
	selectSessionSQL    = `SELECT user_id, device_id, access_token FROM gomatrixbase_session WHERE id = 0`
	upsertSyncTokenSQL  = `INSERT INTO gomatrixbase_sync_token (id, token) VALUES (0, ?) ON CONFLICT(id) DO UPDATE SET token=excluded.token`
	selectSyncTokenSQL  = `SELECT token FROM gomatrixbase_sync_token WHERE id = 0`
	upsertRoomStateSQL  = `INSERT INTO gomatrixbase_room_state (room_id, event_type, state_key, content) VALUES (?, ?, ?, ?) ON CONFLICT(room_id, event_type, state_key) DO UPDATE SET content=excluded.content`
	deleteRoomStateSQL  = `DELETE FROM gomatrixbase_room_state WHERE room_id = ? AND event_type = ? AND state_key = ?`
	upsertRoomBucketSQL = `INSERT INTO gomatrixbase_room_bucket (room_id, bucket) VALUES (?, ?) ON CONFLICT(room_id) DO UPDATE SET bucket=excluded.bucket`
	selectAllStateSQL   = `SELECT room_id, event_type, state_key, content FROM gomatrixbase_room_state`
	selectAllBucketsSQL = `SELECT room_id, bucket FROM gomatrixbase_room_bucket`
	deleteRoomSQL       = `DELETE FROM gomatrixbase_room_state WHERE room_id = ?`
	deleteRoomBucketSQL = `DELETE FROM gomatrixbase_room_bucket WHERE room_id = ?`
	deleteRoomAcctSQL   = `DELETE FROM gomatrixbase_room_account_data WHERE room_id = ?`
	upsertAcctDataSQL   = `INSERT INTO gomatrixbase_account_data (event_type, content) VALUES (?, ?) ON CONFLICT(event_type) DO UPDATE SET content=excluded.content`
	selectAcctDataSQL   = `SELECT content FROM gomatrixbase_account_data WHERE event_type = ?`
	upsertRoomAcctSQL   = `INSERT INTO gomatrixbase_room_account_data (room_id, event_type, content) VALUES (?, ?, ?) ON CONFLICT(room_id, event_type) DO UPDATE SET content=excluded.content`
)

// Store is a StateStore backed by a single SQLite database file.
type Store struct {
	db *sql.DB

	upsertSession    *sql.Stmt
	clearSession     *sql.Stmt
	selectSession    *sql.Stmt
	upsertSyncToken  *sql.Stmt
	selectSyncToken  *sql.Stmt
	upsertRoomState  *sql.Stmt
	deleteRoomState  *sql.Stmt
	upsertRoomBucket *sql.Stmt
	selectAllState   *sql.Stmt
	selectAllBuckets *sql.Stmt
	deleteRoom       *sql.Stmt
	deleteRoomBucket *sql.Stmt
	deleteRoomAcct   *sql.Stmt
	upsertAcctData   *sql.Stmt
	selectAcctData   *sql.Stmt
	upsertRoomAcct   *sql.Stmt
}

var _ store.StateStore = (*Store)(nil)

// Open creates (or reuses) a SQLite database at path and prepares every
// statement the Store will need for its lifetime.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite3")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}

	s := &Store{db: db}
	stmts := []struct {
		dst **sql.Stmt
		sql string
	}{
		{&s.upsertSession, upsertSessionSQL},
		{&s.clearSession, clearSessionSQL},
		{&s.selectSession, selectSessionSQL},
		{&s.upsertSyncToken, upsertSyncTokenSQL},
		{&s.selectSyncToken, selectSyncTokenSQL},
		{&s.upsertRoomState, upsertRoomStateSQL},
		{&s.deleteRoomState, deleteRoomStateSQL},
		{&s.upsertRoomBucket, upsertRoomBucketSQL},
		{&s.selectAllState, selectAllStateSQL},
		{&s.selectAllBuckets, selectAllBucketsSQL},
		{&s.deleteRoom, deleteRoomSQL},
		{&s.deleteRoomBucket, deleteRoomBucketSQL},
		{&s.deleteRoomAcct, deleteRoomAcctSQL},
		{&s.upsertAcctData, upsertAcctDataSQL},
		{&s.selectAcctData, selectAcctDataSQL},
		{&s.upsertRoomAcct, upsertRoomAcctSQL},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.sql)
		if err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "prepare %q", st.sql)
		}
		*st.dst = prepared
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		_, err := s.clearSession.ExecContext(ctx)
		return wrap("SaveSession", err)
	}
	_, err := s.upsertSession.ExecContext(ctx, sess.UserID.String(), string(sess.DeviceID), sess.AccessToken)
	return wrap("SaveSession", err)
}

func (s *Store) LoadSession(ctx context.Context) (session.Session, error) {
	var userID, deviceID, token string
	err := s.selectSession.QueryRowContext(ctx).Scan(&userID, &deviceID, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, nil
	}
	if err != nil {
		return session.Session{}, wrap("LoadSession", err)
	}
	uid, err := event.ParseUserID(userID)
	if err != nil {
		return session.Session{}, wrap("LoadSession", err)
	}
	return session.Session{UserID: uid, DeviceID: event.DeviceID(deviceID), AccessToken: token}, nil
}

func (s *Store) SaveSyncToken(ctx context.Context, token string) error {
	_, err := s.upsertSyncToken.ExecContext(ctx, token)
	return wrap("SaveSyncToken", err)
}

func (s *Store) LoadSyncToken(ctx context.Context) (string, error) {
	var token string
	err := s.selectSyncToken.QueryRowContext(ctx).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrap("LoadSyncToken", err)
	}
	return token, nil
}

func (s *Store) SaveRoomState(ctx context.Context, roomID event.RoomID, bucket string, delta map[store.StateKey]json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("SaveRoomState", err)
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, s.upsertRoomBucket).ExecContext(ctx, roomID.String(), bucket); err != nil {
		return wrap("SaveRoomState", err)
	}
	for key, content := range delta {
		if content == nil {
			if _, err := tx.StmtContext(ctx, s.deleteRoomState).ExecContext(ctx, roomID.String(), key.Type, key.StateKey); err != nil {
				return wrap("SaveRoomState", err)
			}
			continue
		}
		if _, err := tx.StmtContext(ctx, s.upsertRoomState).ExecContext(ctx, roomID.String(), key.Type, key.StateKey, []byte(content)); err != nil {
			return wrap("SaveRoomState", err)
		}
	}
	return wrap("SaveRoomState", tx.Commit())
}

func (s *Store) LoadRoomState(ctx context.Context) (map[event.RoomID]store.RoomSnapshot, error) {
	out := make(map[event.RoomID]store.RoomSnapshot)

	bucketRows, err := s.selectAllBuckets.QueryContext(ctx)
	if err != nil {
		return nil, wrap("LoadRoomState", err)
	}
	defer bucketRows.Close()
	for bucketRows.Next() {
		var roomIDStr, bucket string
		if err := bucketRows.Scan(&roomIDStr, &bucket); err != nil {
			return nil, wrap("LoadRoomState", err)
		}
		roomID, err := event.ParseRoomID(roomIDStr)
		if err != nil {
			return nil, wrap("LoadRoomState", err)
		}
		out[roomID] = store.RoomSnapshot{RoomID: roomID, Bucket: bucket, State: make(map[store.StateKey]json.RawMessage)}
	}
	if err := bucketRows.Err(); err != nil {
		return nil, wrap("LoadRoomState", err)
	}

	stateRows, err := s.selectAllState.QueryContext(ctx)
	if err != nil {
		return nil, wrap("LoadRoomState", err)
	}
	defer stateRows.Close()
	for stateRows.Next() {
		var roomIDStr, eventType, stateKey string
		var content []byte
		if err := stateRows.Scan(&roomIDStr, &eventType, &stateKey, &content); err != nil {
			return nil, wrap("LoadRoomState", err)
		}
		roomID, err := event.ParseRoomID(roomIDStr)
		if err != nil {
			return nil, wrap("LoadRoomState", err)
		}
		snap, ok := out[roomID]
		if !ok {
			snap = store.RoomSnapshot{RoomID: roomID, State: make(map[store.StateKey]json.RawMessage)}
			out[roomID] = snap
		}
		snap.State[store.StateKey{Type: eventType, StateKey: stateKey}] = json.RawMessage(content)
	}
	return out, wrap("LoadRoomState", stateRows.Err())
}

func (s *Store) DeleteRoom(ctx context.Context, roomID event.RoomID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("DeleteRoom", err)
	}
	defer tx.Rollback()
	if _, err := tx.StmtContext(ctx, s.deleteRoom).ExecContext(ctx, roomID.String()); err != nil {
		return wrap("DeleteRoom", err)
	}
	if _, err := tx.StmtContext(ctx, s.deleteRoomBucket).ExecContext(ctx, roomID.String()); err != nil {
		return wrap("DeleteRoom", err)
	}
	if _, err := tx.StmtContext(ctx, s.deleteRoomAcct).ExecContext(ctx, roomID.String()); err != nil {
		return wrap("DeleteRoom", err)
	}
	return wrap("DeleteRoom", tx.Commit())
}

func (s *Store) SaveAccountData(ctx context.Context, eventType string, content json.RawMessage) error {
	_, err := s.upsertAcctData.ExecContext(ctx, eventType, []byte(content))
	return wrap("SaveAccountData", err)
}

func (s *Store) SaveRoomAccountData(ctx context.Context, roomID event.RoomID, eventType string, content json.RawMessage) error {
	_, err := s.upsertRoomAcct.ExecContext(ctx, roomID.String(), eventType, []byte(content))
	return wrap("SaveRoomAccountData", err)
}

func (s *Store) LoadIgnoredUsers(ctx context.Context) ([]string, error) {
	var raw []byte
	err := s.selectAcctData.QueryRowContext(ctx, "m.ignored_user_list").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("LoadIgnoredUsers", err)
	}
	var c struct {
		IgnoredUsers map[string]struct{} `json:"ignored_users"`
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, wrap("LoadIgnoredUsers", err)
	}
	users := make([]string, 0, len(c.IgnoredUsers))
	for u := range c.IgnoredUsers {
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) LoadAccountData(ctx context.Context, eventType string) (json.RawMessage, bool, error) {
	var raw []byte
	err := s.selectAcctData.QueryRowContext(ctx, eventType).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("LoadAccountData", err)
	}
	return json.RawMessage(raw), true, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &store.StoreError{Op: op, Err: err}
}

// Package store provides SQLite-based persistence for the current
// fasting session and the append-only history of completed sessions.
// The database is opened lazily and created on first use.
// If opening the DB or executing queries fails, the store falls back
// to in-memory state so reads never fail and callers never crash.
package store

import (
	"database/sql"
	"sort"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/fastline-go/internal/logger"
	"github.com/comigor/fastline-go/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS current_session (
    id INTEGER PRIMARY KEY CHECK (id = 0),
    is_fasting INTEGER NOT NULL,
    start_time INTEGER NOT NULL,
    update_timestamp INTEGER NOT NULL,
    fasting_goal_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fasting_history (
    start_time_epoch_millis INTEGER PRIMARY KEY,
    end_time_epoch_millis INTEGER NOT NULL,
    fasting_goal_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS device_identity (
    id INTEGER PRIMARY KEY CHECK (id = 0),
    device_id TEXT NOT NULL
);`

// Store owns the single session snapshot and the history log for one
// device. The mutation service and the sync ingress are its only
// writers.
type Store struct {
	path string

	once    sync.Once
	db      *sql.DB
	initErr error

	mu         sync.Mutex
	memSession session.Snapshot
	memHistory map[int64]session.HistoryRecord
	memDevice  string
}

// New creates a store backed by the SQLite file at path. The file is
// opened on first access, not here.
func New(path string) *Store {
	return &Store{
		path:       path,
		memHistory: make(map[int64]session.HistoryRecord),
	}
}

// initDB lazily opens the SQLite database and creates tables if they
// don't exist.
func (s *Store) initDB() {
	var err error
	s.db, err = sql.Open("sqlite", "file:"+s.path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		s.initErr = err
		logger.L.Warn("sqlite open failed; using in-memory session store", "error", err)
		return
	}
	if _, err = s.db.Exec(schema); err != nil {
		s.initErr = err
		logger.L.Warn("sqlite table creation failed; using in-memory session store", "error", err)
		return
	}
	var snap session.Snapshot
	row := s.db.QueryRow(`SELECT is_fasting, start_time, fasting_goal_id, update_timestamp FROM current_session WHERE id = 0;`)
	if err := row.Scan(&snap.IsFasting, &snap.StartTimeMillis, &snap.GoalID, &snap.UpdateTimestampMillis); err == nil {
		s.mu.Lock()
		s.memSession = snap
		s.mu.Unlock()
	}
	logger.L.Info("sqlite session store initialized", "path", s.path)
}

func (s *Store) ready() bool {
	s.once.Do(s.initDB)
	return s.initErr == nil && s.db != nil
}

// Read returns the current session snapshot. It never fails: an empty
// store reads as the inactive default, and query errors fall back to
// the in-memory mirror.
func (s *Store) Read() session.Snapshot {
	if s.ready() {
		var snap session.Snapshot
		row := s.db.QueryRow(`SELECT is_fasting, start_time, fasting_goal_id, update_timestamp FROM current_session WHERE id = 0;`)
		switch err := row.Scan(&snap.IsFasting, &snap.StartTimeMillis, &snap.GoalID, &snap.UpdateTimestampMillis); err {
		case nil:
			return snap
		case sql.ErrNoRows:
			return session.Default()
		default:
			logger.L.Error("session read failed; using in-memory mirror", "error", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memSession
}

// Write atomically replaces the session snapshot. On persistence
// failure the previous snapshot stays intact and the error is
// returned for logging; callers must not crash on it.
func (s *Store) Write(snap session.Snapshot) error {
	if s.ready() {
		_, err := s.db.Exec(`INSERT INTO current_session (id, is_fasting, start_time, fasting_goal_id, update_timestamp)
            VALUES (0,?,?,?,?)
            ON CONFLICT(id) DO UPDATE SET is_fasting=excluded.is_fasting, start_time=excluded.start_time,
                fasting_goal_id=excluded.fasting_goal_id, update_timestamp=excluded.update_timestamp;`,
			snap.IsFasting, snap.StartTimeMillis, snap.GoalID, snap.UpdateTimestampMillis)
		if err != nil {
			logger.L.Error("session write failed; previous snapshot kept", "error", err)
			return err
		}
	}
	s.mu.Lock()
	s.memSession = snap
	s.mu.Unlock()
	return nil
}

// AppendHistory records a completed session. Appends are idempotent
// by start time: a duplicate key is silently ignored, not an error.
func (s *Store) AppendHistory(rec session.HistoryRecord) error {
	if s.ready() {
		_, err := s.db.Exec(`INSERT OR IGNORE INTO fasting_history (start_time_epoch_millis, end_time_epoch_millis, fasting_goal_id)
            VALUES (?,?,?);`, rec.StartTimeEpochMillis, rec.EndTimeEpochMillis, rec.GoalID)
		if err != nil {
			logger.L.Error("history append failed", "error", err, "start", rec.StartTimeEpochMillis)
			return err
		}
	}
	s.mu.Lock()
	if _, exists := s.memHistory[rec.StartTimeEpochMillis]; !exists {
		s.memHistory[rec.StartTimeEpochMillis] = rec
	}
	s.mu.Unlock()
	return nil
}

// History returns completed sessions with a start time at or after
// sinceMillis, in chronological order. Pass 0 for everything.
func (s *Store) History(sinceMillis int64) []session.HistoryRecord {
	if s.ready() {
		rows, err := s.db.Query(`SELECT start_time_epoch_millis, end_time_epoch_millis, fasting_goal_id
            FROM fasting_history WHERE start_time_epoch_millis >= ? ORDER BY start_time_epoch_millis ASC;`, sinceMillis)
		if err == nil {
			defer rows.Close()
			var out []session.HistoryRecord
			for rows.Next() {
				var r session.HistoryRecord
				if err := rows.Scan(&r.StartTimeEpochMillis, &r.EndTimeEpochMillis, &r.GoalID); err == nil {
					out = append(out, r)
				}
			}
			return out
		}
		logger.L.Error("history query failed; using in-memory mirror", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.HistoryRecord
	for _, r := range s.memHistory {
		if r.StartTimeEpochMillis >= sinceMillis {
			out = append(out, r)
		}
	}
	sortHistory(out)
	return out
}

// DeleteHistory removes one completed session by its start time.
// History is otherwise immutable; this exists for explicit user
// deletion only.
func (s *Store) DeleteHistory(startMillis int64) error {
	if s.ready() {
		if _, err := s.db.Exec(`DELETE FROM fasting_history WHERE start_time_epoch_millis = ?;`, startMillis); err != nil {
			logger.L.Error("history delete failed", "error", err, "start", startMillis)
			return err
		}
	}
	s.mu.Lock()
	delete(s.memHistory, startMillis)
	s.mu.Unlock()
	return nil
}

// DeviceID returns the persisted device identity, or "" when none has
// been stored yet.
func (s *Store) DeviceID() string {
	if s.ready() {
		var id string
		row := s.db.QueryRow(`SELECT device_id FROM device_identity WHERE id = 0;`)
		if err := row.Scan(&id); err == nil {
			return id
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memDevice
}

// SetDeviceID persists the device identity used for echo suppression.
func (s *Store) SetDeviceID(id string) error {
	if s.ready() {
		_, err := s.db.Exec(`INSERT INTO device_identity (id, device_id) VALUES (0,?)
            ON CONFLICT(id) DO UPDATE SET device_id=excluded.device_id;`, id)
		if err != nil {
			logger.L.Error("device id write failed", "error", err)
			return err
		}
	}
	s.mu.Lock()
	s.memDevice = id
	s.mu.Unlock()
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func sortHistory(recs []session.HistoryRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartTimeEpochMillis < recs[j].StartTimeEpochMillis
	})
}

// Package journal persists decoded signal observations in sqlite so
// drive sessions can be inspected after the fact.
package journal

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/canbridge/internal/signal"
)

// Journal is a sqlite-backed store of bus sessions and the signal
// values decoded during them. It implements the pump's publisher
// contract, so it can be wired directly into the receive path.
type Journal struct {
	*sql.DB
	path string

	mu        sync.Mutex
	sessionID string
}

// Open opens or creates the journal database. The schema is managed
// by migrations; call MigrateUp before recording into a fresh file.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// WAL keeps readers (tailsql, the HTTP API) from blocking the
	// pump's inserts; the busy timeout rides out checkpoint stalls.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: set pragmas: %w", err)
	}
	return &Journal{DB: db, path: path}, nil
}

// Session is one recording run, usually one daemon start.
type Session struct {
	ID        string `json:"id"`
	StartedAt string `json:"started_at"`
	Bus       string `json:"bus"`
	Note      string `json:"note"`
}

// StartSession opens a new session and makes it current. Subsequent
// signal events are attributed to it.
func (j *Journal) StartSession(bus, note string) (string, error) {
	id := uuid.New().String()
	if _, err := j.Exec(
		"INSERT INTO sessions (id, bus, note) VALUES (?, ?, ?)",
		id, bus, note,
	); err != nil {
		return "", fmt.Errorf("journal: start session: %w", err)
	}
	j.mu.Lock()
	j.sessionID = id
	j.mu.Unlock()
	return id, nil
}

// SessionID returns the current session, or "" before the first one.
func (j *Journal) SessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

// ensureSession returns the current session ID, starting an unnamed
// one if recording began without an explicit StartSession.
func (j *Journal) ensureSession() (string, error) {
	j.mu.Lock()
	id := j.sessionID
	j.mu.Unlock()
	if id != "" {
		return id, nil
	}
	return j.StartSession("", "auto-started")
}

// Sessions lists recorded sessions, newest first.
func (j *Journal) Sessions() ([]Session, error) {
	rows, err := j.Query("SELECT id, started_at, bus, note FROM sessions ORDER BY started_at DESC LIMIT 100")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.Bus, &s.Note); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SignalEvent is one decoded value as stored in the journal. Booleans
// are stored numerically (0 or 1) with is_bool set so readers can
// render them faithfully.
type SignalEvent struct {
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`
	FrameID   uint32    `json:"frame_id"`
	Path      string    `json:"path"`
	Value     float64   `json:"value"`
	IsBool    bool      `json:"is_bool"`
}

// RecordBatch inserts a batch of events in one transaction.
func (j *Journal) RecordBatch(events []SignalEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := j.Begin()
	if err != nil {
		return fmt.Errorf("journal: begin batch: %w", err)
	}
	stmt, err := tx.Prepare(
		"INSERT INTO signal_events (session_id, ts_ns, frame_id, path, value, is_bool) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("journal: prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(ev.SessionID, ev.Time.UnixNano(), int64(ev.FrameID), ev.Path, ev.Value, ev.IsBool); err != nil {
			tx.Rollback()
			return fmt.Errorf("journal: insert %s: %w", ev.Path, err)
		}
	}
	return tx.Commit()
}

// Publish records a frame's decoded values against the current
// session. It satisfies the pump's publisher contract.
func (j *Journal) Publish(ts time.Time, frameID uint32, values map[string]signal.Value) error {
	sid, err := j.ensureSession()
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(values))
	for path := range values {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	events := make([]SignalEvent, 0, len(values))
	for _, path := range paths {
		v := values[path]
		events = append(events, SignalEvent{
			SessionID: sid,
			Time:      ts,
			FrameID:   frameID,
			Path:      path,
			Value:     v.Numeric(),
			IsBool:    v.IsBool,
		})
	}
	return j.RecordBatch(events)
}

// RecentSignals returns the newest events, optionally filtered to one
// destination path. Limit falls back to 100 when not positive.
func (j *Journal) RecentSignals(path string, limit int) ([]SignalEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT session_id, ts_ns, frame_id, path, value, is_bool FROM signal_events"
	args := []any{}
	if path != "" {
		query += " WHERE path = ?"
		args = append(args, path)
	}
	query += " ORDER BY ts_ns DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SignalEvent
	for rows.Next() {
		var ev SignalEvent
		var tsNS, frameID int64
		if err := rows.Scan(&ev.SessionID, &tsNS, &frameID, &ev.Path, &ev.Value, &ev.IsBool); err != nil {
			return nil, err
		}
		ev.Time = time.Unix(0, tsNS).UTC()
		ev.FrameID = uint32(frameID)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Paths lists every destination path that has at least one event.
func (j *Journal) Paths() ([]string, error) {
	rows, err := j.Query("SELECT DISTINCT path FROM signal_events ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

// Rollup summarises one path's events over a time window.
type Rollup struct {
	Path  string    `json:"path"`
	Count int64     `json:"count"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Mean  float64   `json:"mean"`
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// SignalRollup computes count, min, max and mean for a path since the
// given time. A zero Count means no events matched.
func (j *Journal) SignalRollup(path string, since time.Time) (Rollup, error) {
	r := Rollup{Path: path}
	sinceNS := int64(0)
	if !since.IsZero() {
		sinceNS = since.UnixNano()
	}
	var firstNS, lastNS int64
	err := j.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(MIN(value), 0),
		       COALESCE(MAX(value), 0),
		       COALESCE(AVG(value), 0),
		       COALESCE(MIN(ts_ns), 0),
		       COALESCE(MAX(ts_ns), 0)
		FROM signal_events WHERE path = ? AND ts_ns >= ?`,
		path, sinceNS,
	).Scan(&r.Count, &r.Min, &r.Max, &r.Mean, &firstNS, &lastNS)
	if err != nil {
		return Rollup{}, fmt.Errorf("journal: rollup %s: %w", path, err)
	}
	if r.Count > 0 {
		r.First = time.Unix(0, firstNS).UTC()
		r.Last = time.Unix(0, lastNS).UTC()
	}
	return r, nil
}

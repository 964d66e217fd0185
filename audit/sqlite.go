package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS security_events (
	id          TEXT PRIMARY KEY,
	ts          INTEGER NOT NULL,
	level       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	identifier  TEXT NOT NULL DEFAULT '',
	ip          TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_security_events_ts ON security_events (ts);
CREATE INDEX IF NOT EXISTS idx_security_events_kind ON security_events (kind, identifier, ts);

CREATE TABLE IF NOT EXISTS security_alerts (
	id          TEXT PRIMARY KEY,
	ts          INTEGER NOT NULL,
	level       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	identifier  TEXT NOT NULL DEFAULT '',
	ip          TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_security_alerts_ts ON security_alerts (ts);
`

// SQLiteSink persists security events and serves the admin read side.
// Warning-and-above events are duplicated into security_alerts so they
// survive pruning of the main table.
type SQLiteSink struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteSink prepares the schema on db and returns the sink. The
// caller owns the *sql.DB lifecycle.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

// Emit persists event. Failures are logged and swallowed; the event log
// must never fail the operation that produced the event.
func (s *SQLiteSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.db == nil {
		return
	}

	meta := ""
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err == nil {
			meta = string(data)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insert(ctx, "security_events", event, meta); err != nil {
		log.Printf("foliogate/audit: sqlite emit failed: %v", err)
		return
	}
	if event.Level >= LevelWarning {
		if err := s.insert(ctx, "security_alerts", event, meta); err != nil {
			log.Printf("foliogate/audit: sqlite alert emit failed: %v", err)
		}
	}
}

func (s *SQLiteSink) insert(ctx context.Context, table string, event Event, meta string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, ts, level, kind, identifier, ip, user_agent, success, error, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Timestamp.UnixNano(),
		event.Level.String(),
		event.Kind,
		event.Identifier,
		event.IP,
		event.UserAgent,
		boolToInt(event.Success),
		event.Error,
		meta,
	)
	return err
}

// RecentEvents returns up to n events, newest first.
func (s *SQLiteSink) RecentEvents(ctx context.Context, n int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, level, kind, identifier, ip, user_agent, success, error, metadata
		 FROM security_events ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountFailures counts unsuccessful events of the given kind for an
// identifier within the trailing window. The admin dashboard uses it to
// surface brute-force pressure per account and per IP.
func (s *SQLiteSink) CountFailures(ctx context.Context, kind, identifier string, within time.Duration) (int, error) {
	cutoff := time.Now().Add(-within).UnixNano()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM security_events
		 WHERE kind = ? AND identifier = ? AND success = 0 AND ts >= ?`,
		kind, identifier, cutoff).Scan(&count)
	return count, err
}

// PruneBefore deletes events older than cutoff from the main table and
// returns how many rows were removed. Alerts are retained.
func (s *SQLiteSink) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM security_events WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		event   Event
		ts      int64
		level   string
		success int
		meta    string
	)
	if err := rows.Scan(
		&event.ID, &ts, &level, &event.Kind, &event.Identifier,
		&event.IP, &event.UserAgent, &success, &event.Error, &meta,
	); err != nil {
		return Event{}, err
	}

	event.Timestamp = time.Unix(0, ts)
	event.Level = ParseLevel(level)
	event.LevelName = level
	event.Success = success != 0
	if meta != "" {
		_ = json.Unmarshal([]byte(meta), &event.Metadata)
	}
	return event, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

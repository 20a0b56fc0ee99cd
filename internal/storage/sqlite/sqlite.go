// Package sqlite is the embedded bus journal used when no Postgres server
// is configured.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AaronLay10/holoquest/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS bus_events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      INTEGER NOT NULL,
	topic   TEXT NOT NULL,
	payload TEXT,
	room_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bus_events_room_ts ON bus_events(room_id, ts DESC);
`

// Store journals bus messages for one room in a SQLite file.
type Store struct {
	db     *sql.DB
	roomID string
}

var _ storage.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (or creates) the journal at path.
func Open(path, roomID string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; the bus publishes from a single goroutine anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bus_events table: %w", err)
	}
	return &Store{db: db, roomID: roomID}, nil
}

// Append inserts one message.
func (s *Store) Append(ts time.Time, topic string, payload interface{}) error {
	b, err := storage.EncodePayload(payload)
	if err != nil {
		return err
	}
	var text sql.NullString
	if b != nil {
		text = sql.NullString{String: string(b), Valid: true}
	}
	_, err = s.db.Exec(
		`INSERT INTO bus_events (ts, topic, payload, room_id) VALUES (?, ?, ?, ?)`,
		toMillis(ts), topic, text, s.roomID,
	)
	if err != nil {
		return fmt.Errorf("insert bus event: %w", err)
	}
	return nil
}

// Query returns the last N messages, newest first.
func (s *Store) Query(limit int) ([]storage.Row, error) {
	rows, err := s.db.Query(
		`SELECT id, ts, topic, payload, room_id
		 FROM bus_events
		 WHERE room_id = ?
		 ORDER BY ts DESC, id DESC
		 LIMIT ?`,
		s.roomID, storage.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query bus events: %w", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var (
			r       storage.Row
			ts      int64
			payload sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.Topic, &payload, &r.RoomID); err != nil {
			return nil, fmt.Errorf("scan bus event: %w", err)
		}
		r.Timestamp = fromMillis(ts)
		if payload.Valid {
			r.Payload = []byte(payload.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

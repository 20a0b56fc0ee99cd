// Package postgres is the primary bus journal.
package postgres

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/holoquest/internal/storage"
)

// Params are the connection settings. Empty fields fall back to the PG*
// environment variables.
type Params struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnString builds a lib/pq connection string.
func (p Params) ConnString() string {
	host := orEnv(p.Host, "PGHOST", "127.0.0.1")
	port := orEnv(p.Port, "PGPORT", "5432")
	user := orEnv(p.User, "PGUSER", "holoquest")
	dbname := orEnv(p.Database, "PGDATABASE", "holoquest")
	sslmode := orEnv(p.SSLMode, "PGSSLMODE", "disable")
	password := p.Password
	if password == "" {
		password = os.Getenv("PGPASSWORD")
	}

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode)
}

func orEnv(v, key, defaultVal string) string {
	if v != "" {
		return v
	}
	if e := os.Getenv(key); e != "" {
		return e
	}
	return defaultVal
}

// Client journals bus messages for one room.
type Client struct {
	db     *sql.DB
	roomID string
}

var _ storage.Store = (*Client)(nil)

// New connects and creates the journal table. The caller decides whether a
// failure is fatal.
func New(p Params, roomID string) (*Client, error) {
	db, err := sql.Open("postgres", p.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:     db,
		roomID: roomID,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bus_events table: %w", err)
	}

	return client, nil
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS bus_events (
			id      BIGSERIAL PRIMARY KEY,
			ts      TIMESTAMPTZ NOT NULL,
			topic   TEXT NOT NULL,
			payload JSONB,
			room_id TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_bus_events_ts ON bus_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_bus_events_room_id ON bus_events(room_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts one message.
func (c *Client) Append(ts time.Time, topic string, payload interface{}) error {
	payloadJSON, err := storage.EncodePayload(payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bus_events (ts, topic, payload, room_id)
		VALUES ($1, $2, $3, $4)
	`
	_, err = c.db.Exec(query, ts, topic, payloadJSON, c.roomID)
	return err
}

// Query returns the last N messages, newest first.
func (c *Client) Query(limit int) ([]storage.Row, error) {
	query := `
		SELECT id, ts, topic, payload, room_id
		FROM bus_events
		WHERE room_id = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.roomID, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var r storage.Row
		var payload []byte
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Topic, &payload, &r.RoomID); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			r.Payload = payload
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

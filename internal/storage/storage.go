// Package storage defines the bus journal shared by the postgres and sqlite
// backends.
package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultQueryLimit and MaxQueryLimit bound Query.
const (
	DefaultQueryLimit = 200
	MaxQueryLimit     = 10000
)

// Row is one journaled bus message.
type Row struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"ts"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RoomID    string          `json:"room_id"`
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (r Row) Decode(v interface{}) error {
	if len(r.Payload) == 0 || string(r.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.Topic, err)
	}
	return nil
}

// Store is a journal that can be read back.
type Store interface {
	Append(ts time.Time, topic string, payload interface{}) error
	Query(limit int) ([]Row, error)
	Close() error
}

// EncodePayload marshals a payload for storage. Nil stays nil.
func EncodePayload(payload interface{}) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return b, nil
}

// ClampLimit applies the default and maximum to a query limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// Chronological reverses rows returned newest-first, in place.
func Chronological(rows []Row) []Row {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

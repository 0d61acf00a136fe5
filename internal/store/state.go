package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SessionKey is the client_state key holding the device's conversation id.
const SessionKey = "session_id"

// DeviceStore is a small persistent key/value store for client state.
type DeviceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

var _ DeviceStore = (*DB)(nil)

// Get returns the value stored under key. The bool is false when the key is absent.
func (db *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := db.QueryRowContext(ctx, "SELECT value FROM client_state WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, true, nil
}

// Set upserts key.
func (db *DB) Set(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// SessionID returns the persisted session id, creating and storing a new
// UUID on first use.
func SessionID(ctx context.Context, ds DeviceStore) (string, error) {
	id, ok, err := ds.Get(ctx, SessionKey)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := ds.Set(ctx, SessionKey, id); err != nil {
		return "", err
	}
	return id, nil
}

package database

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const tableKV = "kv_store"

// GetValue returns the value stored under key and whether it exists.
func (db *DB) GetValue(key string) (string, bool, error) {
	var value string
	err := sq.Select("value").
		From(tableKV).
		Where(sq.Eq{"key": key}).
		RunWith(db.conn).
		QueryRow().
		Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

// SetValue stores value under key, replacing any previous value.
func (db *DB) SetValue(key, value string) error {
	_, err := sq.Insert(tableKV).
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')").
		RunWith(db.conn).
		Exec()
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// DeleteValue removes key. Deleting a missing key is not an error.
func (db *DB) DeleteValue(key string) error {
	_, err := sq.Delete(tableKV).
		Where(sq.Eq{"key": key}).
		RunWith(db.conn).
		Exec()
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

var (
	_ domain.KVStore           = (*DB)(nil)
	_ domain.TransactionSource = (*DB)(nil)
)

// ─── Key-Value ──────────────────────────────────────────────────────────────

// Get retrieves a value by key. ok is false when the key is absent.
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores a key-value pair, replacing any previous value.
func (d *DB) Set(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	return err
}

// Remove deletes key. Removing an absent key is not an error.
func (d *DB) Remove(ctx context.Context, key string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

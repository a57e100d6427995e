package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// ─── Progression Records ────────────────────────────────────────────────────

// GetRecord returns the stored record for userID or domain.ErrProgressionNotFound.
func (d *DB) GetRecord(ctx context.Context, userID string) (domain.RemoteRecord, error) {
	var raw string
	err := d.db.QueryRowContext(ctx,
		`SELECT record FROM progression_records WHERE user_id = ?`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RemoteRecord{}, domain.ErrProgressionNotFound
	}
	if err != nil {
		return domain.RemoteRecord{}, err
	}

	var rec domain.RemoteRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("%w: %v", domain.ErrStorageCorruption, err)
	}
	return rec, nil
}

// PutRecord stores rec for userID, replacing any previous record.
func (d *DB) PutRecord(ctx context.Context, userID string, rec domain.RemoteRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO progression_records (user_id, record, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET record=excluded.record, updated_at=excluded.updated_at`,
		userID, string(data), rec.UpdatedAt.Unix(),
	)
	return err
}

// DeleteRecord removes the record for userID.
func (d *DB) DeleteRecord(ctx context.Context, userID string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM progression_records WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrProgressionNotFound
	}
	return nil
}

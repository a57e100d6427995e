// Package postgres stores authoritative progression records in PostgreSQL
// for the remote progression service.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a sensible default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Records is a pgx-backed record store.
type Records struct {
	pool *pgxpool.Pool
}

// Open connects, pings and migrates.
func Open(ctx context.Context, cfg Config) (*Records, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	r := &Records{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return r, nil
}

// Close releases the pool.
func (r *Records) Close() {
	r.pool.Close()
}

// Ping checks connectivity.
func (r *Records) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Records) migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS progression_records (
			user_id    TEXT PRIMARY KEY,
			record     JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	return err
}

// GetRecord returns the stored record for userID or domain.ErrProgressionNotFound.
func (r *Records) GetRecord(ctx context.Context, userID string) (domain.RemoteRecord, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT record FROM progression_records WHERE user_id = $1`, userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RemoteRecord{}, domain.ErrProgressionNotFound
	}
	if err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("postgres: get record: %w", err)
	}

	var rec domain.RemoteRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("%w: %v", domain.ErrStorageCorruption, err)
	}
	return rec, nil
}

// PutRecord upserts rec for userID.
func (r *Records) PutRecord(ctx context.Context, userID string, rec domain.RemoteRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO progression_records (user_id, record, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
		userID, data, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put record: %w", err)
	}
	return nil
}

// DeleteRecord removes the record for userID.
func (r *Records) DeleteRecord(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM progression_records WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("postgres: delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProgressionNotFound
	}
	return nil
}

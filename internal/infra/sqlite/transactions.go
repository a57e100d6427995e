package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// ─── Transactions ───────────────────────────────────────────────────────────

// AddTransaction inserts tx, assigning an id when empty.
func (d *DB) AddTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if tx.UserID == "" {
		return tx, fmt.Errorf("add transaction: empty user id")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, date, amount, category) VALUES (?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Date.UnixNano(), tx.Amount, tx.Category,
	)
	if err != nil {
		return tx, fmt.Errorf("add transaction: %w", err)
	}
	return tx, nil
}

// Transactions returns every transaction of userID ordered by date.
// It satisfies domain.TransactionSource.
func (d *DB) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, date, amount, category
		 FROM transactions WHERE user_id = ? ORDER BY date ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// DeleteTransactions removes every transaction of userID.
func (d *DB) DeleteTransactions(ctx context.Context, userID string) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanTransaction(s scanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var date int64
	var category sql.NullString
	if err := s.Scan(&tx.ID, &tx.UserID, &date, &tx.Amount, &category); err != nil {
		return tx, err
	}
	tx.Date = time.Unix(0, date)
	tx.Category = category.String
	return tx, nil
}

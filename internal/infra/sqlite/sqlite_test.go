package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var ctx = context.Background()

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := db.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer db.Close()
	v, ok, err := db.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("Get() after reopen = %q, %v, %v", v, ok, err)
	}
}

// ─── Key-Value ──────────────────────────────────────────────────────────────

func TestKV_GetMissing(t *testing.T) {
	db := newTestDB(t)
	v, ok, err := db.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if ok || v != "" {
		t.Errorf("Get(missing) = %q, %v; want \"\", false", v, ok)
	}
}

func TestKV_SetOverwrite(t *testing.T) {
	db := newTestDB(t)
	if err := db.Set(ctx, "progression:u1", `{"a":1}`); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := db.Set(ctx, "progression:u1", `{"a":2}`); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	v, ok, _ := db.Get(ctx, "progression:u1")
	if !ok || v != `{"a":2}` {
		t.Errorf("Get() = %q, %v", v, ok)
	}
}

func TestKV_Remove(t *testing.T) {
	db := newTestDB(t)
	db.Set(ctx, "k", "v")
	if err := db.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, ok, _ := db.Get(ctx, "k"); ok {
		t.Error("key should be gone")
	}
	if err := db.Remove(ctx, "k"); err != nil {
		t.Errorf("Remove(absent) error: %v", err)
	}
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestAddTransaction_AssignsID(t *testing.T) {
	db := newTestDB(t)
	tx, err := db.AddTransaction(ctx, domain.Transaction{
		UserID: "u1", Date: time.Now(), Amount: -12.5, Category: "food",
	})
	if err != nil {
		t.Fatalf("AddTransaction() error: %v", err)
	}
	if tx.ID == "" {
		t.Error("ID should be assigned")
	}
}

func TestAddTransaction_RequiresUser(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.AddTransaction(ctx, domain.Transaction{Amount: 1}); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestTransactions_OrderedAndScoped(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db.AddTransaction(ctx, domain.Transaction{UserID: "u1", Date: base.AddDate(0, 0, 2), Amount: -3, Category: "fuel"})
	db.AddTransaction(ctx, domain.Transaction{UserID: "u1", Date: base, Amount: 1000, Category: "salary"})
	db.AddTransaction(ctx, domain.Transaction{UserID: "u2", Date: base, Amount: -9, Category: "food"})

	txs, err := db.Transactions(ctx, "u1")
	if err != nil {
		t.Fatalf("Transactions() error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len = %d, want 2", len(txs))
	}
	if !txs[0].Date.Equal(base) || txs[0].Category != "salary" {
		t.Errorf("first = %+v, want salary at %v", txs[0], base)
	}
	if txs[1].Amount != -3 {
		t.Errorf("second amount = %v, want -3", txs[1].Amount)
	}
}

func TestDeleteTransactions(t *testing.T) {
	db := newTestDB(t)
	db.AddTransaction(ctx, domain.Transaction{UserID: "u1", Date: time.Now(), Amount: 1})
	db.AddTransaction(ctx, domain.Transaction{UserID: "u1", Date: time.Now(), Amount: 2})

	n, err := db.DeleteTransactions(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteTransactions() error: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	txs, _ := db.Transactions(ctx, "u1")
	if len(txs) != 0 {
		t.Errorf("remaining = %d, want 0", len(txs))
	}
}

// ─── Progression Records ────────────────────────────────────────────────────

func TestRecord_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetRecord(ctx, "ghost")
	if !errors.Is(err, domain.ErrProgressionNotFound) {
		t.Errorf("GetRecord() error = %v, want ErrProgressionNotFound", err)
	}
}

func TestRecord_PutGet(t *testing.T) {
	db := newTestDB(t)
	state := domain.NewProgressionState()
	state.TotalPoints = 500
	state.Level = 6
	rec := domain.RemoteRecord{
		Progression: state,
		Achievements: []domain.Achievement{
			{UserID: "u1", AchievementID: "first_transaction", PointsReward: 10, EarnedAt: time.Unix(1700000000, 0).UTC()},
		},
		UpdatedAt: time.Unix(1700000100, 0).UTC(),
	}
	if err := db.PutRecord(ctx, "u1", rec); err != nil {
		t.Fatalf("PutRecord() error: %v", err)
	}

	got, err := db.GetRecord(ctx, "u1")
	if err != nil {
		t.Fatalf("GetRecord() error: %v", err)
	}
	if got.Progression.TotalPoints != 500 || got.Progression.Level != 6 {
		t.Errorf("progression = %+v", got.Progression)
	}
	if len(got.Achievements) != 1 || got.Achievements[0].AchievementID != "first_transaction" {
		t.Errorf("achievements = %+v", got.Achievements)
	}
	if !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, rec.UpdatedAt)
	}
}

func TestRecord_Delete(t *testing.T) {
	db := newTestDB(t)
	db.PutRecord(ctx, "u1", domain.RemoteRecord{Progression: domain.NewProgressionState()})
	if err := db.DeleteRecord(ctx, "u1"); err != nil {
		t.Fatalf("DeleteRecord() error: %v", err)
	}
	if err := db.DeleteRecord(ctx, "u1"); !errors.Is(err, domain.ErrProgressionNotFound) {
		t.Errorf("second DeleteRecord() = %v, want ErrProgressionNotFound", err)
	}
}

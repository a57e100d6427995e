package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type failPinger struct{ err error }

func (f failPinger) Ping(context.Context) error { return f.err }

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker_DefaultInterval(t *testing.T) {
	c := NewChecker(0, nil)
	if c.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", c.interval, DefaultInterval)
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	db := newTestDB(t)
	dataDir := t.TempDir()

	c := NewChecker(time.Minute, nil,
		PingCheck("store", db, time.Second),
		DataDirCheck(dataDir),
		BacklogCheck("push_queue", func() int { return 3 }, 10),
	)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() = false, want true")
	}
}

func TestChecker_FailingPing(t *testing.T) {
	c := NewChecker(time.Minute, nil, PingCheck("remote", failPinger{errors.New("refused")}, time.Second))
	c.RunOnce(context.Background())

	if c.IsHealthy() {
		t.Error("IsHealthy() = true, want false")
	}
	s := c.Statuses()[0]
	if s.Healthy || s.Error != "refused" {
		t.Errorf("status = %+v", s)
	}
}

func TestChecker_BacklogOverLimit(t *testing.T) {
	c := NewChecker(time.Minute, nil, BacklogCheck("push_queue", func() int { return 11 }, 10))
	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("backlog over limit should be unhealthy")
	}
}

func TestChecker_RecoverCalled(t *testing.T) {
	recovered := false
	c := NewChecker(time.Minute, nil, Check{
		Name:      "flaky",
		CheckFn:   func(context.Context) error { return errors.New("boom") },
		RecoverFn: func(context.Context) error { recovered = true; return nil },
	})
	c.RunOnce(context.Background())
	if !recovered {
		t.Error("RecoverFn not called")
	}
}

func TestDataDirCheck_RecreatesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	c := NewChecker(time.Minute, nil, DataDirCheck(dir))

	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Fatal("missing dir should be unhealthy on first pass")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("recovery should have created %s: %v", dir, err)
	}

	c.RunOnce(context.Background())
	if !c.IsHealthy() {
		t.Errorf("second pass should be healthy: %+v", c.Statuses())
	}
}

func TestDataDirCheck_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, []byte("x"), 0600)
	if err := checkDataDir(file); err == nil {
		t.Error("expected error for regular file")
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := NewChecker(time.Millisecond, nil, BacklogCheck("q", func() int { return 0 }, 1))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(c.Statuses()) != 1 {
		t.Error("Run should have recorded statuses")
	}
}

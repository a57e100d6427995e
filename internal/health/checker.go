// Package health provides periodic health checks with optional recovery.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

// DefaultInterval is how often the checks run.
const DefaultInterval = 60 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is anything that can prove it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	logger   *slog.Logger
}

// NewChecker creates a checker running checks every interval.
func NewChecker(interval time.Duration, logger *slog.Logger, checks ...Check) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		interval: interval,
		checks:   checks,
		logger:   logger.With("component", "health"),
	}
}

// Add registers another check.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	c.checks = append(c.checks, check)
	c.mu.Unlock()
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce executes every check a single time.
func (c *Checker) RunOnce(ctx context.Context) {
	c.mu.RLock()
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
			c.logger.Warn("health check failed", "check", check.Name, "error", err)
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr != nil {
					c.logger.Warn("recovery failed", "check", check.Name, "error", rerr)
				}
			}
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// PingCheck reports p unreachable as unhealthy.
func PingCheck(name string, p Pinger, timeout time.Duration) Check {
	return Check{
		Name: name,
		CheckFn: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return p.Ping(ctx)
		},
	}
}

// DataDirCheck verifies the data directory is a writable directory.
func DataDirCheck(dir string) Check {
	return Check{
		Name: "data_dir",
		CheckFn: func(ctx context.Context) error {
			return checkDataDir(dir)
		},
		RecoverFn: func(ctx context.Context) error {
			return os.MkdirAll(dir, 0700)
		},
	}
}

// BacklogCheck turns unhealthy when pending() exceeds limit.
func BacklogCheck(name string, pending func() int, limit int) Check {
	return Check{
		Name: name,
		CheckFn: func(ctx context.Context) error {
			if n := pending(); n > limit {
				return fmt.Errorf("%d pending, limit %d", n, limit)
			}
			return nil
		},
	}
}

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/biszaal/expenzez-sub007/internal/api"
	"github.com/biszaal/expenzez-sub007/internal/app/ledger"
	"github.com/biszaal/expenzez-sub007/internal/app/localstore"
	"github.com/biszaal/expenzez-sub007/internal/app/progression"
	"github.com/biszaal/expenzez-sub007/internal/app/syncer"
	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/health"
	"github.com/biszaal/expenzez-sub007/internal/infra/postgres"
	"github.com/biszaal/expenzez-sub007/internal/infra/redis"
	"github.com/biszaal/expenzez-sub007/internal/infra/remote"
	"github.com/biszaal/expenzez-sub007/internal/infra/sqlite"
)

const (
	pingTimeout = 2 * time.Second      // bounds every health ping
	drainPoll   = 25 * time.Millisecond // queue check interval while draining
)

// Daemon is the core expenzez runtime. It wires together all services.
type Daemon struct {
	Config      Config
	Logger      *slog.Logger
	DB          *sqlite.DB
	Redis       *redis.KV // nil unless store.driver = "redis"
	Remote      *remote.Client
	Store       *localstore.Store
	Ledger      *ledger.Ledger
	Sync        *syncer.Coordinator
	Progression *progression.Service
	Health      *health.Checker
	cancel      context.CancelFunc
	started     bool // push worker running
	home        string
}

// New creates and initializes a Daemon with all services wired.
func New(ctx context.Context) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates a Daemon with the given configuration, rooted at
// $EXPENZEZ_HOME.
func NewWithConfig(ctx context.Context, cfg Config) (*Daemon, error) {
	return newDaemon(ctx, cfg, expenzezHome(), os.Stderr)
}

func newDaemon(ctx context.Context, cfg Config, home string, logOut io.Writer) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, logOut)

	// Open SQLite: transaction ledger, and the local cache unless redis is chosen.
	db, err := sqlite.Open(home)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		Config: cfg,
		Logger: logger,
		DB:     db,
		home:   home,
	}

	var kv domain.KVStore = db
	if cfg.Store.Driver == "redis" {
		rcfg := redis.DefaultConfig()
		rcfg.Addr = cfg.Store.RedisAddr
		rcfg.DB = cfg.Store.RedisDB
		if cfg.Store.RedisPrefix != "" {
			rcfg.Prefix = cfg.Store.RedisPrefix
		}
		rkv, err := redis.Open(ctx, rcfg)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		d.Redis = rkv
		kv = rkv
	}

	catalog, err := ledger.DefaultCatalog().WithOverrides(cfg.Actions)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("action catalog: %w", err)
	}

	d.Store = localstore.New(kv, logger)
	d.Ledger = ledger.New(d.Store, catalog, ledger.WithLogger(logger))

	// A nil *remote.Client must not reach the coordinator as a non-nil interface.
	var rp domain.RemoteProgression
	timeout := parseDuration(cfg.Remote.Timeout, syncer.DefaultTimeout)
	if cfg.Remote.BaseURL != "" {
		d.Remote = remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, timeout)
		rp = d.Remote
	}

	retry := syncer.DefaultRetryConfig()
	retry.MaxRetries = cfg.Remote.MaxRetries
	retry.BaseDelay = parseDuration(cfg.Remote.BaseDelay, retry.BaseDelay)
	retry.MaxDelay = parseDuration(cfg.Remote.MaxDelay, retry.MaxDelay)
	if cfg.Remote.QueueSize > 0 {
		retry.MaxPending = cfg.Remote.QueueSize
	}
	d.Sync = syncer.NewCoordinator(d.Store, rp, syncer.Config{Timeout: timeout, Retry: retry}, logger)

	d.Progression = progression.New(domain.StaticIdentity(cfg.User.ID), d.Store, d.Ledger, db, d.Sync, progression.Options{
		Strict: cfg.Progression.Strict,
		Logger: logger,
	})

	// Health checker
	d.Health = health.NewChecker(health.DefaultInterval, logger,
		health.DataDirCheck(home),
		health.PingCheck("sqlite", db, pingTimeout),
		health.BacklogCheck("push_queue", d.Sync.Queue().Len, retry.MaxPending*3/4),
	)
	if d.Redis != nil {
		d.Health.Add(health.PingCheck("redis", d.Redis, pingTimeout))
	}
	if d.Remote != nil {
		d.Health.Add(health.PingCheck("remote", d.Remote, pingTimeout))
	}

	logger.Debug("daemon initialized",
		"home", home,
		"store", cfg.Store.Driver,
		"remote", cfg.Remote.BaseURL != "",
		"actions", catalog.Len(),
	)
	return d, nil
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Start launches the background push worker. It retries failed pushes with
// backoff until Close.
func (d *Daemon) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.started = true

	go d.Sync.Queue().Run(ctx)
}

// Drain gives pending pushes a bounded chance to reach the remote before a
// short-lived command exits. With the worker running it waits for the
// worker's retries; otherwise it flushes once. It returns the number still
// pending. Whatever is left stays marked in the local store and is pushed
// by the next run.
func (d *Daemon) Drain(ctx context.Context) int {
	q := d.Sync.Queue()
	if !d.Sync.Remote() || q.Len() == 0 {
		return q.Len()
	}
	bound := parseDuration(d.Config.Remote.Timeout, syncer.DefaultTimeout) * 2
	ctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	if !d.started {
		q.Flush(ctx)
		return q.Len()
	}

	deadline := time.Now().Add(bound)
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for q.Len() > 0 {
		// Stop early when the next retry falls past the deadline.
		if wait, ok := q.NextRetry(); ok && wait > time.Until(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return q.Len()
		case <-ticker.C:
		}
	}
	return q.Len()
}

// ─── Remote Progression Service ─────────────────────────────────────────────

// openRecords selects the record backend of the progression service.
func (d *Daemon) openRecords(ctx context.Context) (api.RecordStore, func(), error) {
	if d.Config.Server.Backend != "postgres" {
		return d.DB, func() {}, nil
	}
	pcfg := postgres.DefaultConfig()
	pcfg.DSN = d.Config.Server.PostgresDSN
	pg, err := postgres.Open(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres records: %w", err)
	}
	d.Health.Add(health.PingCheck("postgres", pg, pingTimeout))
	return pg, pg.Close, nil
}

// Serve runs the authoritative progression HTTP service and blocks until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	records, closeRecords, err := d.openRecords(ctx)
	if err != nil {
		return err
	}
	defer closeRecords()

	srv := api.NewServer(records, d.Logger)
	srv.SetHealth(d.Health)
	if d.Config.Server.Token != "" {
		srv.RequireToken(d.Config.Server.Token)
	}
	if d.Config.Server.Metrics {
		srv.EnableMetrics()
	}

	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	d.Logger.Info("progression service listening",
		"addr", addr,
		"backend", d.Config.Server.Backend,
		"metrics", d.Config.Server.Metrics,
		"auth", d.Config.Server.Token != "",
	)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

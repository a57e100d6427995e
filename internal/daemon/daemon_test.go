package daemon

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biszaal/expenzez-sub007/internal/api"
	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/sqlite"
)

func newTestDaemon(t *testing.T, cfg Config) *Daemon {
	t.Helper()
	d, err := newDaemon(context.Background(), cfg, t.TempDir(), io.Discard)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func TestDaemon_LocalOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.User.ID = "u1"
	d := newTestDaemon(t, cfg)
	ctx := context.Background()

	assert.Nil(t, d.Remote)
	assert.False(t, d.Sync.Remote())

	res, err := d.Progression.Award(ctx, "connect-bank")
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.PointsAwarded)

	assert.Zero(t, d.Drain(ctx), "local-only never queues pushes")
	assert.Equal(t, int64(50), d.Progression.GetCurrentProgress(ctx).TotalPoints)

	d.Health.RunOnce(ctx)
	assert.True(t, d.Health.IsHealthy())
}

func TestDaemon_CatalogOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.User.ID = "u1"
	cfg.Actions = []domain.ActionDefinition{
		{ID: "connect-bank", DisplayName: "Connect a bank", BasePoints: 75, Cadence: domain.CadenceMilestone},
		{ID: "scan-receipt", DisplayName: "Scan a receipt", BasePoints: 3, Cadence: domain.CadenceDaily},
	}
	d := newTestDaemon(t, cfg)

	def, ok := d.Ledger.Catalog().Lookup("connect-bank")
	require.True(t, ok)
	assert.Equal(t, int64(75), def.BasePoints)

	res, err := d.Progression.Award(context.Background(), "scan-receipt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.PointsAwarded)
}

func TestDaemon_BadCatalogOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Actions = []domain.ActionDefinition{{ID: "broken", BasePoints: 0, Cadence: domain.CadenceDaily}}
	_, err := newDaemon(context.Background(), cfg, t.TempDir(), io.Discard)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
}

func TestDaemon_PushesToRemoteService(t *testing.T) {
	remoteDB, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { remoteDB.Close() })

	srv := api.NewServer(remoteDB, nil)
	srv.RequireToken("secret")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := DefaultConfig()
	cfg.User.ID = "u1"
	cfg.Remote.BaseURL = ts.URL
	cfg.Remote.Token = "secret"
	d := newTestDaemon(t, cfg)
	ctx := context.Background()

	_, err = d.Progression.Award(ctx, "connect-bank")
	require.NoError(t, err)
	assert.Zero(t, d.Drain(ctx))

	rec, err := remoteDB.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.Progression.TotalPoints)

	d.Health.RunOnce(ctx)
	assert.True(t, d.Health.IsHealthy())
}

func newRemoteService(t *testing.T) (*sqlite.DB, *httptest.Server) {
	t.Helper()
	remoteDB, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { remoteDB.Close() })

	ts := httptest.NewServer(api.NewServer(remoteDB, nil).Handler())
	t.Cleanup(ts.Close)
	return remoteDB, ts
}

func TestDaemon_WorkerDeliversDuringDrain(t *testing.T) {
	remoteDB, ts := newRemoteService(t)

	cfg := DefaultConfig()
	cfg.User.ID = "u1"
	cfg.Remote.BaseURL = ts.URL
	d := newTestDaemon(t, cfg)
	ctx := context.Background()
	d.Start(ctx)

	_, err := d.Progression.Award(ctx, "connect-bank")
	require.NoError(t, err)
	assert.Zero(t, d.Drain(ctx))

	rec, err := remoteDB.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.Progression.TotalPoints)
}

func TestDaemon_OfflineProgressPushedByNextRun(t *testing.T) {
	remoteDB, ts := newRemoteService(t)
	home := t.TempDir()
	ctx := context.Background()

	// First run: the service is unreachable.
	offline := DefaultConfig()
	offline.User.ID = "u1"
	offline.Remote.BaseURL = "http://127.0.0.1:1"
	offline.Remote.Timeout = "200ms"
	first, err := newDaemon(ctx, offline, home, io.Discard)
	require.NoError(t, err)
	first.Start(ctx)
	_, err = first.Progression.Award(ctx, "connect-bank")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Drain(ctx))
	first.Close()

	// Second run over the same data directory with the service back.
	online := offline
	online.Remote.BaseURL = ts.URL
	online.Remote.Timeout = "3s"
	second, err := newDaemon(ctx, online, home, io.Discard)
	require.NoError(t, err)
	t.Cleanup(second.Close)
	second.Start(ctx)

	assert.Equal(t, int64(50), second.Progression.GetCurrentProgress(ctx).TotalPoints)
	assert.Zero(t, second.Drain(ctx))

	rec, err := remoteDB.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.Progression.TotalPoints)
}

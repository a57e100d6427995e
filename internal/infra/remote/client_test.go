package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biszaal/expenzez-sub007/internal/api"
	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/remote"
	"github.com/biszaal/expenzez-sub007/internal/infra/sqlite"
)

var ctx = context.Background()

func newService(t *testing.T, token string) *httptest.Server {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := api.NewServer(db, nil)
	if token != "" {
		srv.RequireToken(token)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_NotFound(t *testing.T) {
	ts := newService(t, "")
	c := remote.NewClient(ts.URL, "", time.Second)

	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrProgressionNotFound)
}

func TestClient_PutGet(t *testing.T) {
	ts := newService(t, "tok")
	c := remote.NewClient(ts.URL+"/", "tok", time.Second)

	state := domain.NewProgressionState()
	state.TotalPoints = 250
	state.Level = 3
	state.LastActionTimestamps["add-expense"] = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := domain.RemoteRecord{
		Progression:  state,
		Achievements: []domain.Achievement{{UserID: "u1", AchievementID: "first_transaction", PointsReward: 10}},
		UpdatedAt:    time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
	}
	require.NoError(t, c.Put(ctx, "u1", rec))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.Progression.TotalPoints)
	assert.Equal(t, 3, got.Progression.Level)
	assert.True(t, got.UpdatedAt.Equal(rec.UpdatedAt))
	require.Len(t, got.Achievements, 1)
}

func TestClient_Unauthorized(t *testing.T) {
	ts := newService(t, "tok")
	c := remote.NewClient(ts.URL, "wrong", time.Second)

	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	c := remote.NewClient(ts.URL, "", time.Second)

	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.ErrorIs(t, c.Put(ctx, "u1", domain.RemoteRecord{}), domain.ErrRemoteUnavailable)
	assert.Error(t, c.Ping(ctx))
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := remote.NewClient(url, "", 200*time.Millisecond)
	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	c := remote.NewClient(ts.URL, "", 50*time.Millisecond)
	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestClient_SendsRequestID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(remote.RequestIDHeader)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	remote.NewClient(ts.URL, "", time.Second).Get(ctx, "u1")
	assert.Len(t, got, 36)
}

func TestClient_Ping(t *testing.T) {
	ts := newService(t, "")
	assert.NoError(t, remote.NewClient(ts.URL, "", time.Second).Ping(ctx))
}

func TestClient_EmptyUser(t *testing.T) {
	c := remote.NewClient("http://127.0.0.1:1", "", time.Second)
	_, err := c.Get(ctx, "")
	assert.Error(t, err)
}

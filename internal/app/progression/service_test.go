package progression_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biszaal/expenzez-sub007/internal/app/ledger"
	"github.com/biszaal/expenzez-sub007/internal/app/localstore"
	"github.com/biszaal/expenzez-sub007/internal/app/progression"
	"github.com/biszaal/expenzez-sub007/internal/app/syncer"
	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/sqlite"
)

var ctx = context.Background()

// 2026-03-10 is a Tuesday.
var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type identity struct {
	mu sync.Mutex
	id string
}

func (i *identity) UserID() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id, i.id != ""
}

func (i *identity) set(id string) {
	i.mu.Lock()
	i.id = id
	i.mu.Unlock()
}

type fakeRemote struct {
	mu      sync.Mutex
	records map[string]domain.RemoteRecord
	err     error
}

func (f *fakeRemote) Get(_ context.Context, uid string) (domain.RemoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.RemoteRecord{}, f.err
	}
	rec, ok := f.records[uid]
	if !ok {
		return domain.RemoteRecord{}, domain.ErrProgressionNotFound
	}
	return rec, nil
}

func (f *fakeRemote) Put(_ context.Context, uid string, rec domain.RemoteRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records[uid] = rec
	return nil
}

func (f *fakeRemote) put(uid string, points int64, achs ...domain.Achievement) {
	st := domain.NewProgressionState()
	st.TotalPoints = points
	f.mu.Lock()
	f.records[uid] = domain.RemoteRecord{Progression: st, Achievements: achs}
	f.mu.Unlock()
}

func (f *fakeRemote) points(uid string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[uid].Progression.TotalPoints
}

type fixture struct {
	svc    *progression.Service
	db     *sqlite.DB
	remote *fakeRemote
	sync   *syncer.Coordinator
	id     *identity
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	remote := &fakeRemote{records: make(map[string]domain.RemoteRecord)}
	return newFixtureOver(db, remote, strict)
}

// newFixtureOver builds a fresh Service over an existing database, the way a
// new process starts over the same data directory.
func newFixtureOver(db *sqlite.DB, remote *fakeRemote, strict bool) *fixture {
	store := localstore.New(db, nil)
	l := ledger.New(store, ledger.DefaultCatalog())
	sc := syncer.NewCoordinator(store, remote, syncer.DefaultConfig(), nil)
	id := &identity{id: "u1"}

	svc := progression.New(id, store, l, db, sc, progression.Options{
		Strict: strict,
		Now:    func() time.Time { return now },
	})
	return &fixture{svc: svc, db: db, remote: remote, sync: sc, id: id}
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fixture) addTx(t *testing.T, uid string, at time.Time, amount float64, category string) {
	t.Helper()
	_, err := f.db.AddTransaction(ctx, domain.Transaction{UserID: uid, Date: at, Amount: amount, Category: category})
	require.NoError(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// Identity
// ═══════════════════════════════════════════════════════════════════════════

func TestSignedOut_ZeroValues(t *testing.T) {
	f := newFixture(t, true)
	f.id.set("")

	p := f.svc.GetCurrentProgress(ctx)
	assert.Equal(t, 1, p.Level)
	assert.Zero(t, p.TotalPoints)
	assert.Equal(t, int64(100), p.PointsToNextLevel)

	res, err := f.svc.Award(ctx, "add-expense")
	require.NoError(t, err)
	assert.Zero(t, res.PointsAwarded)

	can, err := f.svc.CanEarn(ctx, "add-expense")
	require.NoError(t, err)
	assert.False(t, can)

	assert.Nil(t, f.svc.ListAchievements(ctx))
	assert.Equal(t, domain.StreakSummary{}, f.svc.Streak(ctx))
	assert.Empty(t, f.svc.EvaluateAchievements(ctx).NewlyEarned)
	assert.NoError(t, f.svc.Logout(ctx))
}

// ═══════════════════════════════════════════════════════════════════════════
// Awards
// ═══════════════════════════════════════════════════════════════════════════

func TestAward_Facade(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.svc.Award(ctx, "add-expense")
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.PointsAwarded)

	res, err = f.svc.Award(ctx, "add-expense")
	require.NoError(t, err)
	assert.Zero(t, res.PointsAwarded)
	assert.Contains(t, res.Message, "Wait 5 more minute(s)")

	can, err := f.svc.CanEarn(ctx, "add-expense")
	require.NoError(t, err)
	assert.False(t, can)

	p := f.svc.GetCurrentProgress(ctx)
	assert.Equal(t, int64(5), p.TotalPoints)
	assert.Len(t, f.svc.History(ctx), 1)
}

func TestAward_UnknownActionStrict(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Award(ctx, "teleport")
	assert.ErrorIs(t, err, domain.ErrUnknownAction)

	_, err = f.svc.CanEarn(ctx, "teleport")
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
}

func TestAward_UnknownActionProduction(t *testing.T) {
	f := newFixture(t, false)
	res, err := f.svc.Award(ctx, "teleport")
	assert.NoError(t, err)
	assert.Zero(t, res.PointsAwarded)
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievements
// ═══════════════════════════════════════════════════════════════════════════

func TestFirstTransaction(t *testing.T) {
	f := newFixture(t, true)
	f.addTx(t, "u1", now, -12.5, "Food")

	p := f.svc.StartSession(ctx)
	assert.Equal(t, int64(10), p.TotalPoints)
	assert.Equal(t, 1, p.AchievementCount)

	achs := f.svc.ListAchievements(ctx)
	require.Len(t, achs, 1)
	assert.Equal(t, "first_transaction", achs[0].AchievementID)

	ev := f.svc.EvaluateAchievements(ctx)
	assert.Empty(t, ev.NewlyEarned)
	assert.Equal(t, int64(10), f.svc.GetCurrentProgress(ctx).TotalPoints)
}

func TestAchievementPointsAddToActionPoints(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Award(ctx, "connect-bank")
	require.NoError(t, err)

	f.addTx(t, "u1", now, -20, "food")
	ev := f.svc.EvaluateAchievements(ctx)
	require.Len(t, ev.NewlyEarned, 1)
	assert.Equal(t, int64(10), ev.Award.PointsAwarded)

	assert.Equal(t, int64(60), f.svc.GetCurrentProgress(ctx).TotalPoints)
}

func TestStreakAndStats(t *testing.T) {
	f := newFixture(t, true)
	for d := 0; d < 3; d++ {
		f.addTx(t, "u1", now.AddDate(0, 0, -d), -5, "coffee")
	}

	assert.Equal(t, domain.StreakSummary{Current: 3, Longest: 3}, f.svc.Streak(ctx))
	st := f.svc.UserStats(ctx)
	assert.Equal(t, 3, st.TotalTransactions)
	assert.Equal(t, 1, st.CategoriesUsed)

	ev := f.svc.EvaluateAchievements(ctx)
	ids := make([]string, 0, len(ev.NewlyEarned))
	for _, a := range ev.NewlyEarned {
		ids = append(ids, a.AchievementID)
	}
	assert.Contains(t, ids, "streak_3")
}

// ═══════════════════════════════════════════════════════════════════════════
// Sync
// ═══════════════════════════════════════════════════════════════════════════

func TestColdHydrateThenLatched(t *testing.T) {
	f := newFixture(t, true)
	f.remote.put("u1", 500)

	assert.Equal(t, int64(500), f.svc.GetCurrentProgress(ctx).TotalPoints)
	assert.Equal(t, 6, f.svc.GetCurrentProgress(ctx).Level)

	f.remote.put("u1", 600)
	assert.Equal(t, int64(500), f.svc.GetCurrentProgress(ctx).TotalPoints)
}

func TestHydratedAchievementsAreNotCreditedTwice(t *testing.T) {
	f := newFixture(t, true)
	f.addTx(t, "u1", now, -1, "misc")
	f.remote.put("u1", 10, domain.Achievement{UserID: "u1", AchievementID: "first_transaction", PointsReward: 10})

	p := f.svc.StartSession(ctx)
	assert.Equal(t, int64(10), p.TotalPoints)
	assert.Equal(t, 1, p.AchievementCount)
}

func TestMutationsArePushed(t *testing.T) {
	f := newFixture(t, true)
	f.svc.StartSession(ctx)

	_, err := f.svc.Award(ctx, "connect-bank")
	require.NoError(t, err)
	assert.Equal(t, 1, f.svc.Stats().Pending)

	f.sync.Queue().Flush(ctx)
	assert.Equal(t, int64(50), f.remote.points("u1"))
	assert.Zero(t, f.svc.Stats().Pending)
}

func TestRemoteDown_LocalStillWorks(t *testing.T) {
	f := newFixture(t, true)
	f.remote.err = errors.New("offline")

	res, err := f.svc.Award(ctx, "connect-bank")
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.PointsAwarded)

	f.sync.Queue().Flush(ctx)
	assert.Equal(t, 1, f.svc.Stats().Pending, "failed push stays queued")
	assert.Equal(t, int64(50), f.svc.GetCurrentProgress(ctx).TotalPoints)
}

func TestLogout_ClearsAndRehydrates(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Award(ctx, "connect-bank")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx))
	assert.Zero(t, f.svc.Stats().Pending)

	f.remote.put("u1", 42)
	assert.Equal(t, int64(42), f.svc.GetCurrentProgress(ctx).TotalPoints)
}

func TestSwitchUser_NewSession(t *testing.T) {
	f := newFixture(t, true)
	f.remote.put("u2", 300)

	_, err := f.svc.Award(ctx, "connect-bank")
	require.NoError(t, err)

	f.id.set("u2")
	assert.Equal(t, int64(300), f.svc.GetCurrentProgress(ctx).TotalPoints)

	f.id.set("u1")
	assert.Equal(t, int64(50), f.svc.GetCurrentProgress(ctx).TotalPoints)
}

func TestOfflineAwardSurvivesRestart(t *testing.T) {
	first := newFixture(t, true)
	first.remote.put("u1", 500)
	assert.Equal(t, int64(500), first.svc.GetCurrentProgress(ctx).TotalPoints)

	first.remote.setErr(errors.New("offline"))
	_, err := first.svc.Award(ctx, "connect-bank")
	require.NoError(t, err)
	first.sync.Queue().Flush(ctx)
	require.Equal(t, 1, first.svc.Stats().Pending)

	// Next run: same database, remote reachable again, cold session.
	first.remote.setErr(nil)
	second := newFixtureOver(first.db, first.remote, true)
	assert.Equal(t, int64(550), second.svc.GetCurrentProgress(ctx).TotalPoints)
	require.Equal(t, 1, second.svc.Stats().Pending, "unpushed change is scheduled instead of overwritten")

	second.sync.Queue().Flush(ctx)
	assert.Equal(t, int64(550), first.remote.points("u1"))

	// Once pushed, a later run hydrates normally again.
	first.remote.put("u1", 700)
	third := newFixtureOver(first.db, first.remote, true)
	assert.Equal(t, int64(700), third.svc.GetCurrentProgress(ctx).TotalPoints)
}

func TestLogout_WaitsForInFlightHydrate(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	remote := &blockingRemote{fakeRemote: fakeRemote{records: make(map[string]domain.RemoteRecord)}, release: make(chan struct{}), entered: make(chan struct{})}
	remote.put("u1", 500)

	store := localstore.New(db, nil)
	l := ledger.New(store, ledger.DefaultCatalog())
	sc := syncer.NewCoordinator(store, remote, syncer.DefaultConfig(), nil)
	svc := progression.New(&identity{id: "u1"}, store, l, db, sc, progression.Options{Now: func() time.Time { return now }})

	got := make(chan int64, 1)
	go func() { got <- svc.GetCurrentProgress(ctx).TotalPoints }()
	<-remote.entered

	loggedOut := make(chan error, 1)
	go func() { loggedOut <- svc.Logout(ctx) }()

	select {
	case <-loggedOut:
		t.Fatal("logout finished while a hydrate was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(remote.release)
	assert.Equal(t, int64(500), <-got)
	require.NoError(t, <-loggedOut)

	book, err := store.LoadBook(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, book.State.TotalPoints, "hydrated record must not survive logout")
}

// blockingRemote holds the first Get until release is closed.
type blockingRemote struct {
	fakeRemote
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRemote) Get(ctx context.Context, uid string) (domain.RemoteRecord, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.fakeRemote.Get(ctx, uid)
}

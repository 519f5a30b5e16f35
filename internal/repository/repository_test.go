package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/daybook/internal/kv"
	"github.com/mesh-intelligence/daybook/internal/sqlite"
	"github.com/mesh-intelligence/daybook/internal/summary"
	"github.com/mesh-intelligence/daybook/pkg/types"
)

// testNow is the pinned "now" of every test unless a test moves the clock.
var testNow = time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, days)
}

// fixture wires a repository to a SQLite primary store in a temp dir and a
// Pebble index store.
type fixture struct {
	t       *testing.T
	dir     string
	backend *sqlite.Backend
	primary types.PrimaryStore
	kv      *kv.Store
	clock   *testClock
	metrics *Metrics
	repo    *Repository
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, dir: t.TempDir(), clock: &testClock{now: testNow}, metrics: NewMetrics()}
	f.open(opts...)
	t.Cleanup(f.close)
	return f
}

// open attaches the stores found in f.dir and builds a fresh repository.
func (f *fixture) open(opts ...Option) {
	f.t.Helper()
	f.backend = sqlite.NewBackend()
	require.NoError(f.t, f.backend.Attach(types.Config{Backend: types.BackendSQLite, DataDir: f.dir}))
	coll, err := f.backend.Collection(types.CollectionTasks)
	require.NoError(f.t, err)
	f.primary = coll
	f.kv, err = kv.Open(filepath.Join(f.dir, "index"))
	require.NoError(f.t, err)

	base := []Option{
		WithClock(f.clock.Now),
		WithLocation(time.UTC),
		WithMetrics(f.metrics),
	}
	f.repo, err = New(types.CollectionTasks, f.primary, f.kv, append(base, opts...)...)
	require.NoError(f.t, err)
}

func (f *fixture) close() {
	if f.kv != nil {
		f.kv.Close()
	}
	if f.backend != nil {
		f.backend.Detach()
	}
}

// restart closes both stores and reopens them from disk.
func (f *fixture) restart(opts ...Option) {
	f.t.Helper()
	f.close()
	f.open(opts...)
}

func (f *fixture) today() types.DateKey {
	return types.DateKeyOf(f.clock.Now(), time.UTC)
}

// seed writes records straight into the primary store, bypassing the
// indexes, as history that predates the repository would look.
func (f *fixture) seed(recs ...*types.Record) {
	f.t.Helper()
	for _, rec := range recs {
		require.NoError(f.t, f.primary.Put(context.Background(), rec))
	}
}

func (f *fixture) entry(key types.DateKey) ([]string, bool) {
	f.t.Helper()
	ids, ok, err := f.repo.dates.IDs(key)
	require.NoError(f.t, err)
	return ids, ok
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func record(id string, key types.DateKey, category, status, group string) *types.Record {
	at, err := key.Time(time.UTC)
	if err != nil {
		panic(err)
	}
	at = at.Add(9 * time.Hour)
	return &types.Record{
		ID:        id,
		Title:     "record " + id,
		Category:  category,
		Status:    status,
		GroupID:   group,
		At:        at,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func ids(recs []*types.Record) []string {
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ID)
	}
	return out
}

// flakyStore fails chosen primary store operations with an unclassified
// error.
type flakyStore struct {
	types.PrimaryStore
	failPut    bool
	failGet    bool
	failGetAll bool
}

var errDisk = errors.New("disk on fire")

func (s *flakyStore) GetAll(ctx context.Context) ([]*types.Record, error) {
	if s.failGetAll {
		return nil, errDisk
	}
	return s.PrimaryStore.GetAll(ctx)
}

func (s *flakyStore) Get(ctx context.Context, id string) (*types.Record, error) {
	if s.failGet {
		return nil, errDisk
	}
	return s.PrimaryStore.Get(ctx, id)
}

func (s *flakyStore) Put(ctx context.Context, rec *types.Record) error {
	if s.failPut {
		return errDisk
	}
	return s.PrimaryStore.Put(ctx, rec)
}

// flakyKV fails batched writes on demand.
type flakyKV struct {
	types.KV
	failApply bool
}

func (k *flakyKV) Apply(ops ...types.KVOp) error {
	if k.failApply {
		return fmt.Errorf("%w: batch refused", types.ErrStoreUnavailable)
	}
	return k.KV.Apply(ops...)
}

func TestNew_Validates(t *testing.T) {
	store, err := kv.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()
	primary := &flakyStore{}

	_, err = New("Bad Name", primary, store)
	assert.ErrorIs(t, err, types.ErrCollectionInvalid)

	_, err = New(types.CollectionTasks, nil, store)
	assert.Error(t, err)

	_, err = New(types.CollectionTasks, primary, store, WithBootstrapDays(-1))
	assert.ErrorIs(t, err, types.ErrBootstrapDaysInvalid)
	_, err = New(types.CollectionTasks, primary, store, WithBootstrapDays(types.MaxWindowDays+1))
	assert.ErrorIs(t, err, types.ErrBootstrapDaysInvalid)

	r, err := New(types.CollectionTasks, primary, store)
	require.NoError(t, err)
	assert.Equal(t, types.CollectionTasks, r.Collection())
	assert.Equal(t, time.Local, r.Location())
}

func TestRepository_CreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := f.today()

	created, err := f.repo.Create(ctx, &types.Record{Title: "Stretch", At: testNow, Category: "health"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, types.CollectionTasks, created.Collection)
	assert.Equal(t, testNow, created.CreatedAt)
	assert.Equal(t, testNow, created.UpdatedAt)

	got, err := f.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stretch", got.Title)

	entry, ok := f.entry(today)
	require.True(t, ok, "today is inside the bootstrap window")
	assert.Equal(t, []string{created.ID}, entry)

	day, err := f.repo.GetForDate(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, ids(day))
}

func TestRepository_CreateRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.Create(ctx, &types.Record{Title: "no date"})
	assert.ErrorIs(t, err, types.ErrMissingDate)

	_, err = f.repo.Create(ctx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidData)

	_, err = f.repo.Create(ctx, record("dup", f.today(), "", "", ""))
	require.NoError(t, err)
	_, err = f.repo.Create(ctx, record("dup", f.today(), "", "", ""))
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	_, err = f.repo.Get(ctx, " ")
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestRepository_UpdateAndDeleteMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.Update(ctx, record("ghost", f.today(), "", "", ""))
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.NotErrorIs(t, err, types.ErrStoreUnavailable)

	assert.ErrorIs(t, f.repo.Delete(ctx, "ghost"), types.ErrNotFound)
	assert.ErrorIs(t, f.repo.Delete(ctx, ""), types.ErrInvalidID)

	_, err = f.repo.Update(ctx, &types.Record{At: testNow})
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestRepository_MoveConsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dayA := f.today().AddDays(-3)
	dayB := f.today().AddDays(-1)

	rec, err := f.repo.Create(ctx, record("move-me", dayA, "work", "open", ""))
	require.NoError(t, err)

	created := rec.CreatedAt
	f.clock.advance(1)
	moved := record("move-me", dayB, "work", "done", "")
	updated, err := f.repo.Update(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, created, updated.CreatedAt)

	onA, err := f.repo.GetForDate(ctx, dayA)
	require.NoError(t, err)
	assert.Empty(t, onA)
	onB, err := f.repo.GetForDate(ctx, dayB)
	require.NoError(t, err)
	assert.Equal(t, []string{"move-me"}, ids(onB))

	entryA, ok := f.entry(dayA)
	require.True(t, ok)
	assert.NotContains(t, entryA, "move-me")
	entryB, ok := f.entry(dayB)
	require.True(t, ok)
	assert.Contains(t, entryB, "move-me")
}

func TestRepository_DeleteConsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := f.today().AddDays(-2)

	_, err := f.repo.Create(ctx, record("keep", day, "", "", "g1"))
	require.NoError(t, err)
	_, err = f.repo.Create(ctx, record("drop", day, "", "", "g1"))
	require.NoError(t, err)

	require.NoError(t, f.repo.Delete(ctx, "drop"))

	got, err := f.repo.GetForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids(got))
	entry, _ := f.entry(day)
	assert.Equal(t, []string{"keep"}, entry)

	_, err = f.repo.Get(ctx, "drop")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRepository_ResultsAreOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := f.today()

	late := record("a-late", day, "", "", "")
	late.At = late.At.Add(5 * time.Hour)
	early := record("z-early", day, "", "", "")
	tieA := record("m-tie", day, "", "", "")
	tieA.At = tieA.At.Add(time.Hour)
	tieB := record("n-tie", day, "", "", "")
	tieB.At = tieA.At
	for _, rec := range []*types.Record{late, tieB, early, tieA} {
		_, err := f.repo.Create(ctx, rec)
		require.NoError(t, err)
	}

	got, err := f.repo.GetForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"z-early", "m-tie", "n-tie", "a-late"}, ids(got))
}

func TestRepository_IdempotentRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := f.today().AddDays(-5)
	f.seed(record("r1", day, "", "", ""), record("r2", day, "", "", ""))

	// Bootstrap indexes the seeded day.
	first, err := f.repo.GetForDate(ctx, day)
	require.NoError(t, err)
	want, ok := f.entry(day)
	require.True(t, ok)

	for range 2 {
		require.NoError(t, f.repo.dates.Clear(day))
		got, err := f.repo.GetForDate(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(got))

		rebuilt, ok := f.entry(day)
		require.True(t, ok)
		assert.Equal(t, want, rebuilt)
	}
}

func TestRepository_CorruptionRecovery(t *testing.T) {
	f := newFixture(t)
	f.clock.now = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	day := types.DateKey("20260210")

	rec, err := f.repo.Create(ctx, record("plants", day, "home", "open", ""))
	require.NoError(t, err)
	require.NoError(t, f.kv.Put([]byte("tasks/d/20260210"), []byte("{not json")))

	got, err := f.repo.GetForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, ids(got))

	entry, ok := f.entry(day)
	require.True(t, ok, "corrupt entry is overwritten with a valid one")
	assert.Equal(t, []string{rec.ID}, entry)
}

func TestRepository_EmptyEntryHidingRecordsIsRebuilt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := f.today().AddDays(-1)

	_, err := f.repo.GetForDate(ctx, day)
	require.NoError(t, err)
	// A record that reached the primary store without touching the index.
	f.seed(record("sneaky", day, "", "", ""))

	got, err := f.repo.GetForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"sneaky"}, ids(got))
	entry, _ := f.entry(day)
	assert.Equal(t, []string{"sneaky"}, entry)
}

func TestRepository_StaleIDRepair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := f.today().AddDays(-4)

	_, err := f.repo.Create(ctx, record("real", day, "", "", ""))
	require.NoError(t, err)
	require.NoError(t, f.repo.dates.Add(day, "ghost"))

	got, err := f.repo.GetForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"real"}, ids(got))

	entry, _ := f.entry(day)
	assert.Equal(t, []string{"real"}, entry)
}

func TestRepository_MisplacedIDIsMovedHome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	home := f.today().AddDays(-6)
	wrong := f.today().AddDays(-7)

	_, err := f.repo.Create(ctx, record("wanderer", home, "", "", ""))
	require.NoError(t, err)
	_, err = f.repo.GetForDate(ctx, wrong)
	require.NoError(t, err)
	require.NoError(t, f.repo.dates.Move(home, wrong, "wanderer"))

	got, err := f.repo.GetForDate(ctx, wrong)
	require.NoError(t, err)
	assert.Empty(t, got)

	entry, _ := f.entry(home)
	assert.Equal(t, []string{"wanderer"}, entry)
	got, err = f.repo.GetForDate(ctx, home)
	require.NoError(t, err)
	assert.Equal(t, []string{"wanderer"}, ids(got))
}

func TestRepository_StoreUnavailableLeavesIndexUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := f.today()

	flaky := &flakyStore{PrimaryStore: f.primary}
	repo, err := New(types.CollectionTasks, flaky, f.kv, WithClock(f.clock.Now), WithLocation(time.UTC))
	require.NoError(t, err)
	_, err = repo.Create(ctx, record("ok", day, "", "", ""))
	require.NoError(t, err)

	flaky.failPut = true
	_, err = repo.Create(ctx, record("lost", day, "", "", ""))
	require.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDisk)

	_, err = repo.Update(ctx, record("ok", day.AddDays(-1), "", "", ""))
	require.ErrorIs(t, err, types.ErrStoreUnavailable)

	entry, ok := f.entry(day)
	require.True(t, ok)
	assert.Equal(t, []string{"ok"}, entry)

	flaky.failPut = false
	flaky.failGetAll = true
	_, err = repo.GetForDate(ctx, day.AddDays(-200))
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)

	flaky.failGetAll = false
	flaky.failGet = true
	_, err = repo.GetForDate(ctx, day)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
}

func TestRepository_IndexFailureRollsBackWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := f.today()

	flaky := &flakyKV{KV: f.kv}
	repo, err := New(types.CollectionTasks, f.primary, flaky, WithClock(f.clock.Now), WithLocation(time.UTC))
	require.NoError(t, err)
	_, err = repo.Create(ctx, record("first", day, "", "", ""))
	require.NoError(t, err)

	flaky.failApply = true
	_, err = repo.Create(ctx, record("second", day, "", "", ""))
	require.ErrorIs(t, err, types.ErrStoreUnavailable)

	_, err = f.primary.Get(ctx, "second")
	assert.ErrorIs(t, err, types.ErrNotFound, "primary write is undone")

	flaky.failApply = false
	got, err := repo.GetForDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, ids(got))
}

func TestRepository_SummaryEquivalence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := f.today()

	// Indexed days, an uncovered day, and a record with neither category
	// nor status.
	for i, spec := range []struct {
		day      types.DateKey
		category string
		status   string
	}{
		{today, "work", "open"},
		{today, "work", "done"},
		{today, "home", "done"},
		{today, "", ""},
		{today.AddDays(-1), "work", "open"},
		{today.AddDays(-45), "home", "open"},
	} {
		_, err := f.repo.Create(ctx, record(fmt.Sprintf("s%d", i), spec.day, spec.category, spec.status, ""))
		require.NoError(t, err)
	}
	all, err := f.primary.GetAll(ctx)
	require.NoError(t, err)

	for _, key := range []types.DateKey{today, today.AddDays(-1), today.AddDays(-45), today.AddDays(-2)} {
		got, err := f.repo.SummaryForDate(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, summary.Fold(key, key, time.UTC, all), got, "summary for %s", key)
	}

	got, err := f.repo.SummaryForRange(ctx, today.AddDays(-60), today)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Total)
	assert.Equal(t, summary.Fold(today.AddDays(-60), today, time.UTC, all), got)
	assert.Equal(t, 1, got.ByCategory[types.UncategorizedBucket])
	assert.Equal(t, 1, got.ByStatus[types.NoStatusBucket])

	s, err := f.repo.SummaryForDate(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, map[string]int{"work": 2, "home": 1, types.UncategorizedBucket: 1}, s.ByCategory)
	assert.Equal(t, map[string]int{"open": 1, "done": 2, types.NoStatusBucket: 1}, s.ByStatus)
}

func TestRepository_InvalidReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repo.GetForDate(ctx, "2026-13-01")
	assert.ErrorIs(t, err, types.ErrInvalidDateKey)
	_, err = f.repo.GetInRange(ctx, "20260510", "20260501")
	assert.ErrorIs(t, err, types.ErrInvalidRange)
	_, err = f.repo.SummaryForRange(ctx, "20260510", "20260501")
	assert.ErrorIs(t, err, types.ErrInvalidRange)
	_, err = f.repo.SummaryForDate(ctx, "yesterday")
	assert.ErrorIs(t, err, types.ErrInvalidDateKey)
	_, err = f.repo.GetForGroup(ctx, "")
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestRepository_EmptyDayReadsAsNoRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, key := range []types.DateKey{f.today(), f.today().AddDays(-90), f.today().AddDays(3)} {
		got, err := f.repo.GetForDate(ctx, key)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestRepository_EmptyCoveredDayReadsOnlyThatDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := f.today()
	seedDaily(f, 60)
	quiet := today.AddDays(-3)
	require.NoError(t, f.primary.Delete(ctx, "day-003"))

	got, err := f.repo.GetForDate(ctx, quiet)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.RangeReads.WithLabelValues(types.CollectionTasks, "date")))
	assert.Equal(t, 0.0, counterValue(t, f.metrics.Scans.WithLabelValues(types.CollectionTasks, "date")))

	// A store without time-range reads falls back to a full scan.
	plain := &flakyStore{PrimaryStore: f.primary}
	repo, err := New(types.CollectionTasks, plain, f.kv, WithClock(f.clock.Now), WithLocation(time.UTC), WithMetrics(f.metrics))
	require.NoError(t, err)
	got, err = repo.GetForDate(ctx, quiet)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.Scans.WithLabelValues(types.CollectionTasks, "date")))
}

func TestRepository_GetInRangeSharesOneRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := f.today()
	f.seed(
		record("old-1", today.AddDays(-100), "", "", ""),
		record("old-2", today.AddDays(-98), "", "", ""),
		record("new-1", today.AddDays(-1), "", "", ""),
	)
	_, err := f.repo.GetForDate(ctx, today.AddDays(-1))
	require.NoError(t, err)

	got, err := f.repo.GetInRange(ctx, today.AddDays(-105), today.AddDays(-95))
	require.NoError(t, err)
	assert.Equal(t, []string{"old-1", "old-2"}, ids(got))
	assert.Equal(t, 1.0, counterValue(t, f.metrics.RangeReads.WithLabelValues(types.CollectionTasks, "date")))
	assert.Equal(t, 0.0, counterValue(t, f.metrics.Scans.WithLabelValues(types.CollectionTasks, "date")))
	assert.Equal(t, 11.0, counterValue(t, f.metrics.Fallbacks.WithLabelValues(types.CollectionTasks, "uncovered")))

	got, err = f.repo.GetInRange(ctx, today.AddDays(-2), today)
	require.NoError(t, err)
	assert.Equal(t, []string{"new-1"}, ids(got))
}

func TestRepository_ConcurrentCreatesOnOneDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := f.today()
	_, err := f.repo.GetForDate(ctx, day)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.repo.Create(ctx, record(fmt.Sprintf("c%02d", i), day, "", "", ""))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, ok := f.entry(day)
	require.True(t, ok)
	assert.Len(t, entry, 20)
}

func TestRepository_FutureRecordsReadByScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	future := f.today().AddDays(10)

	_, err := f.repo.Create(ctx, record("trip", future, "travel", "planned", ""))
	require.NoError(t, err)

	_, ok := f.entry(future)
	assert.False(t, ok, "future days are outside the window")
	got, err := f.repo.GetForDate(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, []string{"trip"}, ids(got))
	_, ok = f.entry(future)
	assert.False(t, ok, "reads outside the window never write the index")
}

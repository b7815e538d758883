package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/schedule"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/internal/infrastructure/messaging"
	"github.com/roboxon/student-app/internal/infrastructure/persistence/filestore"
)

var monday = time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

func twoHourMonday() schedule.Schedule {
	return schedule.Schedule{{Weekday: 1, Start: "09:00", End: "11:00"}}
}

// countingStore counts loads and serves documents from a map.
type countingStore struct {
	mu    sync.Mutex
	docs  map[string]*report.WeeklyReportRecord
	loads int
}

func (s *countingStore) Save(_ context.Context, doc *report.WeeklyReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Key().String()] = doc.Clone()
	return nil
}

func (s *countingStore) Load(_ context.Context, key report.Key) report.LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if doc, ok := s.docs[key.String()]; ok {
		return report.LoadResult{Doc: doc.Clone(), Outcome: report.LoadOK}
	}
	return report.LoadResult{Outcome: report.LoadNotFound}
}

func (s *countingStore) Remove(_ context.Context, key report.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key.String())
	return nil
}

func (s *countingStore) Exists(_ context.Context, key report.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[key.String()]
	return ok
}

func describe(t *testing.T, doc *report.WeeklyReportRecord, hour int) {
	t.Helper()
	require.NoError(t, doc.SetSlot(monday.Add(time.Duration(hour)*time.Hour), report.SlotEdit{Description: "work"}, monday))
}

func TestCalculate_Classification(t *testing.T) {
	e := NewEngine(nil, &countingStore{docs: map[string]*report.WeeklyReportRecord{}})
	ctx := context.Background()

	empty := report.InitializeWeek("empty", monday, nil)
	entry, err := e.Calculate(ctx, empty, nil)
	require.NoError(t, err)
	assert.Equal(t, report.StatusNone, entry.Status)
	assert.Zero(t, entry.Required)

	partial := report.InitializeWeek("partial", monday, twoHourMonday())
	describe(t, partial, 9)
	entry, err = e.Calculate(ctx, partial, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusPartial, entry.Status)
	assert.Equal(t, time.Hour, entry.Reported)
	assert.Equal(t, 2*time.Hour, entry.Required)

	_, err = e.Calculate(ctx, nil, nil)
	assert.Error(t, err)
}

func TestCalculate_RecomputesWhenHoursChange(t *testing.T) {
	cache := NewMemoryCache()
	e := NewEngine(cache, &countingStore{docs: map[string]*report.WeeklyReportRecord{}})
	ctx := context.Background()

	doc := report.InitializeWeek("s1", monday, twoHourMonday())
	first, err := e.Calculate(ctx, doc, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusNone, first.Status)

	describe(t, doc, 9)
	describe(t, doc, 10)
	updated, err := e.Calculate(ctx, doc, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusComplete, updated.Status)

	cached, ok, err := cache.Get(ctx, doc.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.StatusComplete, cached.Status)
	assert.Equal(t, 1, cache.Len())
}

func TestCalculate_ServesMemoizedEntryForSameHours(t *testing.T) {
	cache := NewMemoryCache()
	e := NewEngine(cache, &countingStore{docs: map[string]*report.WeeklyReportRecord{}})
	ctx := context.Background()

	doc := report.InitializeWeek("s1", monday, twoHourMonday())
	describe(t, doc, 9)
	pinned := report.StatusEntry{Status: report.StatusPartial, Reported: time.Hour, Required: 2 * time.Hour}
	require.NoError(t, cache.Set(ctx, doc.Key(), pinned))

	entry, err := e.Calculate(ctx, doc, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, pinned, entry)
}

func TestCalculate_ScheduleChangeRecomputes(t *testing.T) {
	e := NewEngine(NewMemoryCache(), &countingStore{docs: map[string]*report.WeeklyReportRecord{}})
	ctx := context.Background()

	doc := report.InitializeWeek("s1", monday, twoHourMonday())
	describe(t, doc, 9)
	entry, err := e.Calculate(ctx, doc, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusPartial, entry.Status)

	oneHour := schedule.Schedule{{Weekday: 1, Start: "09:00", End: "10:00"}}
	entry, err = e.Calculate(ctx, doc, oneHour)
	require.NoError(t, err)
	assert.Equal(t, report.StatusComplete, entry.Status)
	assert.Equal(t, time.Hour, entry.Required)
}

func TestReset(t *testing.T) {
	cache := NewMemoryCache()
	e := NewEngine(cache, &countingStore{docs: map[string]*report.WeeklyReportRecord{}})
	ctx := context.Background()

	for _, id := range []string{"s1", "s10", "s2"} {
		_, err := e.Calculate(ctx, report.InitializeWeek(id, monday, nil), nil)
		require.NoError(t, err)
	}
	_, err := e.Calculate(ctx, report.InitializeWeek("s1", monday.AddDate(0, 0, 7), nil), nil)
	require.NoError(t, err)
	require.Equal(t, 4, cache.Len())

	require.NoError(t, e.Reset(ctx, "s1"))
	assert.Equal(t, 2, cache.Len(), "s10 and s2 survive")

	assert.True(t, shared.IsValidation(NewEngine(failingCache{}, nil).Reset(ctx, "s1")))
}

func TestStatus_CoherentAfterSave(t *testing.T) {
	ctx := context.Background()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	store, err := filestore.NewReportStore(t.TempDir(), filestore.WithPublisher(bus))
	require.NoError(t, err)

	e := NewEngine(nil, store)
	require.NoError(t, e.Subscribe(bus))

	doc := report.InitializeWeek("s1", monday, twoHourMonday())
	key := doc.Key()

	before, err := e.Status(ctx, key, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusNone, before.Status)

	describe(t, doc, 9)
	require.NoError(t, store.Save(ctx, doc))
	afterSave, err := e.Status(ctx, key, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusPartial, afterSave.Status)

	describe(t, doc, 10)
	require.NoError(t, store.Save(ctx, doc))
	complete, err := e.Calculate(ctx, doc, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusComplete, complete.Status)

	require.NoError(t, store.Remove(ctx, key))
	afterRemove, err := e.Status(ctx, key, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusNone, afterRemove.Status)
}

func TestStatus_ReadsStoreOnce(t *testing.T) {
	store := &countingStore{docs: map[string]*report.WeeklyReportRecord{}}
	e := NewEngine(nil, store)
	ctx := context.Background()

	doc := report.InitializeWeek("s1", monday, twoHourMonday())
	describe(t, doc, 9)
	require.NoError(t, store.Save(ctx, doc))

	for i := 0; i < 3; i++ {
		entry, err := e.Status(ctx, doc.Key(), twoHourMonday())
		require.NoError(t, err)
		assert.Equal(t, report.StatusPartial, entry.Status)
	}
	assert.Equal(t, 1, store.loads)
}

type failingCache struct{}

func (failingCache) Get(context.Context, report.Key) (report.StatusEntry, bool, error) {
	return report.StatusEntry{}, false, errors.New("cache down")
}
func (failingCache) Set(context.Context, report.Key, report.StatusEntry) error {
	return errors.New("cache down")
}
func (failingCache) Delete(context.Context, report.Key) error { return errors.New("cache down") }

func TestStatus_CacheFailuresFallBackToComputation(t *testing.T) {
	store := &countingStore{docs: map[string]*report.WeeklyReportRecord{}}
	e := NewEngine(failingCache{}, store)
	ctx := context.Background()

	doc := report.InitializeWeek("s1", monday, twoHourMonday())
	describe(t, doc, 9)
	require.NoError(t, store.Save(ctx, doc))

	entry, err := e.Status(ctx, doc.Key(), twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusPartial, entry.Status)
	assert.Error(t, e.Invalidate(ctx, doc.Key()))
}

func TestStatus_MissingDraftIsNotMemoized(t *testing.T) {
	cache := NewMemoryCache()
	e := NewEngine(cache, &countingStore{docs: map[string]*report.WeeklyReportRecord{}})
	ctx := context.Background()

	key := report.NewKey("s1", monday)
	entry, err := e.Status(ctx, key, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusNone, entry.Status)
	assert.Zero(t, cache.Len())

	// The portal copy of a submitted week is classified from its own hours.
	submitted := report.InitializeWeek("s1", monday, twoHourMonday())
	describe(t, submitted, 9)
	describe(t, submitted, 10)
	entry, err = e.Calculate(ctx, submitted, twoHourMonday())
	require.NoError(t, err)
	assert.Equal(t, report.StatusComplete, entry.Status)
}

func TestOverview(t *testing.T) {
	store := &countingStore{docs: map[string]*report.WeeklyReportRecord{}}
	e := NewEngine(nil, store, WithOverviewConcurrency(2))
	ctx := context.Background()

	doc := report.InitializeWeek("s1", monday, twoHourMonday())
	describe(t, doc, 9)
	require.NoError(t, store.Save(ctx, doc))

	weeks := []time.Time{monday.AddDate(0, 0, -7), monday, monday.AddDate(0, 0, 9)}
	rows, err := e.Overview(ctx, "s1", weeks, twoHourMonday(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, report.StatusNone, rows[0].Entry.Status)
	assert.Equal(t, report.StatusPartial, rows[1].Entry.Status)
	assert.Equal(t, monday.AddDate(0, 0, 7), rows[2].WeekStart, "normalized to monday")
	assert.Equal(t, 2*time.Hour, rows[2].Entry.Required)
}

func TestOverview_Cancelled(t *testing.T) {
	e := NewEngine(nil, &countingStore{docs: map[string]*report.WeeklyReportRecord{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Overview(ctx, "s1", []time.Time{monday}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOverview_FallsBackForWeeksWithoutDraft(t *testing.T) {
	store := &countingStore{docs: map[string]*report.WeeklyReportRecord{}}
	e := NewEngine(nil, store)
	ctx := context.Background()

	draft := report.InitializeWeek("s1", monday, twoHourMonday())
	describe(t, draft, 9)
	require.NoError(t, store.Save(ctx, draft))

	next := monday.AddDate(0, 0, 7)
	remote := report.InitializeWeek("s1", next, twoHourMonday())
	for _, h := range []int{9, 10} {
		require.NoError(t, remote.SetSlot(next.Add(time.Duration(h)*time.Hour), report.SlotEdit{Description: "work"}, next))
	}

	var (
		mu       sync.Mutex
		resolved []report.Key
	)
	fallback := func(_ context.Context, key report.Key) (*report.WeeklyReportRecord, error) {
		mu.Lock()
		defer mu.Unlock()
		resolved = append(resolved, key)
		return remote.Clone(), nil
	}

	rows, err := e.Overview(ctx, "s1", []time.Time{monday, next}, twoHourMonday(), fallback)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, report.StatusPartial, rows[0].Entry.Status)
	assert.Equal(t, report.StatusComplete, rows[1].Entry.Status)
	assert.Equal(t, []report.Key{report.NewKey("s1", next)}, resolved)

	boom := errors.New("token expired")
	_, err = e.Overview(ctx, "s1", []time.Time{monday.AddDate(0, 0, 14)}, twoHourMonday(),
		func(context.Context, report.Key) (*report.WeeklyReportRecord, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

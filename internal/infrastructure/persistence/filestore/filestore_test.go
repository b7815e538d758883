package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboxon/student-app/internal/domain/curriculum"
	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/schedule"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/pkg/timeutil"
)

var monday = time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func sampleDoc(t *testing.T) *report.WeeklyReportRecord {
	t.Helper()
	sched := schedule.Schedule{
		{Weekday: 1, Start: "09:00", End: "12:30"},
		{Weekday: 3, Start: "13:00", End: "15:00"},
	}
	doc := report.InitializeWeek("s1", monday, sched)
	subject := int64(42)
	stamp := time.Date(2024, time.January, 8, 10, 15, 0, 0, time.UTC)
	require.NoError(t, doc.SetSlot(monday.Add(9*time.Hour), report.SlotEdit{
		SubjectID:   &subject,
		SubjectName: "Algorithms",
		Description: "binary search",
	}, stamp))
	require.NoError(t, doc.SetDailySummary(monday, "solid start"))
	doc.SetSummary("first week")
	return doc
}

func newStore(t *testing.T, pub shared.EventPublisher) (*ReportStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewReportStore(dir,
		WithPublisher(pub),
		WithClock(timeutil.FixedClock(monday.Add(12*time.Hour))),
	)
	require.NoError(t, err)
	return store, dir
}

func TestReportStore_RoundTrip(t *testing.T) {
	pub := &recordingPublisher{}
	store, dir := newStore(t, pub)
	ctx := context.Background()
	doc := sampleDoc(t)

	require.NoError(t, store.Save(ctx, doc))
	assert.FileExists(t, filepath.Join(dir, "reports", "s1", "2024-01-08.json"))
	assert.True(t, store.Exists(ctx, doc.Key()))

	res := store.Load(ctx, doc.Key())
	require.True(t, res.Found(), "outcome %s: %v", res.Outcome, res.Err)
	assert.Equal(t, doc, res.Doc)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventReportSaved, pub.events[0].EventType())
	assert.Equal(t, "s1/2024-01-08", pub.events[0].AggregateID())
}

func TestReportStore_LoadNormalizesWeek(t *testing.T) {
	store, _ := newStore(t, nil)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleDoc(t)))

	res := store.Load(ctx, report.Key{StudentID: "s1", WeekStart: monday.AddDate(0, 0, 3)})
	assert.True(t, res.Found())
}

func TestReportStore_Missing(t *testing.T) {
	store, _ := newStore(t, nil)

	res := store.Load(context.Background(), report.NewKey("s1", monday))
	assert.Equal(t, report.LoadNotFound, res.Outcome)
	assert.Nil(t, res.Doc)
	assert.NoError(t, res.Err)
	assert.False(t, store.Exists(context.Background(), report.NewKey("s1", monday)))
}

func TestReportStore_CorruptFiles(t *testing.T) {
	ctx := context.Background()
	key := report.NewKey("s1", monday)

	tests := []struct {
		name   string
		mutate func(t *testing.T, path string)
	}{
		{"garbage", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		}},
		{"truncated", func(t *testing.T, path string) {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))
		}},
		{"tampered payload", func(t *testing.T, path string) {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			tampered := strings.Replace(string(data), "binary search", "linear search", 1)
			require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))
		}},
		{"empty", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, nil, 0o644))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, dir := newStore(t, nil)
			require.NoError(t, store.Save(ctx, sampleDoc(t)))
			tt.mutate(t, filepath.Join(dir, "reports", "s1", "2024-01-08.json"))

			res := store.Load(ctx, key)
			assert.Equal(t, report.LoadCorrupt, res.Outcome)
			assert.False(t, res.Found())
			assert.ErrorIs(t, res.Err, shared.ErrCorruptCache)
			assert.True(t, store.Exists(ctx, key), "corrupt files are left for inspection")
		})
	}
}

func TestReportStore_MisplacedFileIsCorrupt(t *testing.T) {
	store, dir := newStore(t, nil)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleDoc(t)))

	src := filepath.Join(dir, "reports", "s1", "2024-01-08.json")
	dst := filepath.Join(dir, "reports", "s1", "2024-01-15.json")
	require.NoError(t, os.Rename(src, dst))

	res := store.Load(ctx, report.NewKey("s1", monday.AddDate(0, 0, 7)))
	assert.Equal(t, report.LoadCorrupt, res.Outcome)
}

func TestReportStore_RemovePublishesEvenWithoutFile(t *testing.T) {
	pub := &recordingPublisher{}
	store, _ := newStore(t, pub)
	ctx := context.Background()
	key := report.NewKey("s1", monday)

	require.NoError(t, store.Remove(ctx, key))
	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventReportRemoved, pub.events[0].EventType())

	require.NoError(t, store.Save(ctx, sampleDoc(t)))
	require.NoError(t, store.Remove(ctx, key))
	assert.False(t, store.Exists(ctx, key))
	assert.Len(t, pub.events, 3)
}

func TestReportStore_RemovePublishesOnEarlyReturn(t *testing.T) {
	pub := &recordingPublisher{}
	store, _ := newStore(t, pub)
	require.NoError(t, store.Save(context.Background(), sampleDoc(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Remove(ctx, report.NewKey("s1", monday)), context.Canceled)
	assert.True(t, shared.IsValidation(store.Remove(context.Background(), report.NewKey("../other", monday))))

	require.Len(t, pub.events, 3)
	for _, e := range pub.events[1:] {
		assert.Equal(t, shared.EventReportRemoved, e.EventType())
	}
	assert.True(t, store.Exists(context.Background(), report.NewKey("s1", monday)))
}

func TestReportStore_RejectsInvalidDocuments(t *testing.T) {
	pub := &recordingPublisher{}
	store, _ := newStore(t, pub)
	ctx := context.Background()

	assert.True(t, shared.IsValidation(store.Save(ctx, nil)))

	bad := sampleDoc(t)
	bad.Days = bad.Days[:5]
	assert.ErrorIs(t, store.Save(ctx, bad), shared.ErrMalformedWeek)

	escape := sampleDoc(t)
	escape.StudentID = "../other"
	assert.True(t, shared.IsValidation(store.Save(ctx, escape)))

	assert.Empty(t, pub.events)
}

func TestReportStore_Weeks(t *testing.T) {
	store, _ := newStore(t, nil)
	ctx := context.Background()

	later := report.InitializeWeek("s1", monday.AddDate(0, 0, 14), nil)
	require.NoError(t, store.Save(ctx, later))
	require.NoError(t, store.Save(ctx, sampleDoc(t)))

	weeks, err := store.Weeks(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{monday, monday.AddDate(0, 0, 14)}, weeks)

	none, err := store.Weeks(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReportStore_CancelledContext(t *testing.T) {
	store, _ := newStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, sampleDoc(t)), context.Canceled)
	assert.False(t, store.Exists(context.Background(), report.NewKey("s1", monday)))
}

func TestReleaseStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewReleaseStore(dir)
	require.NoError(t, err)

	_, err = store.Load(ctx, 7)
	assert.ErrorIs(t, err, shared.ErrReleaseNotFound)
	assert.True(t, shared.IsNotFound(err))

	minutes := 45
	env := &curriculum.Envelope{StatusCode: 200, Data: &curriculum.Release{
		ID: 7,
		Program: curriculum.Program{ID: 1, Name: "Backend", Subjects: []curriculum.Subject{
			{ID: 42, Name: "Algorithms", Topics: []curriculum.Topic{
				{ID: 5, Name: "Search", Lessons: []curriculum.Lesson{{ID: 9, Title: "Binary search", DurationMinutes: &minutes}}},
			}},
		}},
	}}
	require.NoError(t, store.Save(ctx, 7, env))

	got, err := store.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, env, got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "releases", "7.json"), []byte("[]"), 0o644))
	_, err = store.Load(ctx, 7)
	assert.ErrorIs(t, err, shared.ErrCorruptCache)
}

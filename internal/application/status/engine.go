// Package status classifies report weeks as none, partial or complete and
// memoizes the result until the week's draft changes.
package status

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/schedule"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/pkg/logger"
	"github.com/roboxon/student-app/pkg/metrics"
)

const defaultOverviewConcurrency = 4

// invalidationTimeout bounds cache deletes triggered by change events,
// which carry no context of their own.
const invalidationTimeout = 2 * time.Second

// Engine derives week status against the schedule. Results are cached per
// report key and dropped when the local store announces a change.
type Engine struct {
	cache       report.StatusCache
	store       report.LocalStore
	logger      *logger.Logger
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithOverviewConcurrency bounds the weeks computed in parallel by Overview.
func WithOverviewConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an engine reading drafts from store. A nil cache gets
// an in-memory one.
func NewEngine(cache report.StatusCache, store report.LocalStore, opts ...Option) *Engine {
	if cache == nil {
		cache = NewMemoryCache()
	}
	e := &Engine{
		cache:       cache,
		store:       store,
		logger:      logger.Nop(),
		concurrency: defaultOverviewConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("status_engine"))
	return e
}

// ══════════════════════════════════════════════════════════════════════════════
// INVALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Subscribe registers the engine for report change events so every store
// mutation invalidates the affected entry.
func (e *Engine) Subscribe(sub shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventReportSaved,
		shared.EventReportRemoved,
		shared.EventReportSubmitted,
	} {
		if err := sub.Subscribe(t, e.onReportChanged); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) onReportChanged(event shared.Event) error {
	changed, ok := event.(shared.ReportChangedEvent)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), invalidationTimeout)
	defer cancel()
	return e.Invalidate(ctx, report.NewKey(changed.StudentID, changed.WeekStart))
}

// Invalidate drops the cached entry for key.
func (e *Engine) Invalidate(ctx context.Context, key report.Key) error {
	if err := e.cache.Delete(ctx, key); err != nil {
		e.logger.Error("status cache invalidation failed", logger.ReportKey(key.String()), logger.Err(err))
		return err
	}
	e.logger.Debug("status invalidated", logger.ReportKey(key.String()))
	return nil
}

// StudentInvalidator is implemented by caches that can drop every week of
// a student at once.
type StudentInvalidator interface {
	InvalidateStudent(ctx context.Context, studentID string) error
}

// Reset drops every cached week of a student.
func (e *Engine) Reset(ctx context.Context, studentID string) error {
	inv, ok := e.cache.(StudentInvalidator)
	if !ok {
		return shared.NewDomainError("status", "Reset", shared.ErrValidation, "status cache cannot drop a student's weeks")
	}
	if err := inv.InvalidateStudent(ctx, studentID); err != nil {
		return err
	}
	e.logger.Info("status cache reset", logger.StudentID(studentID))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATION
// ══════════════════════════════════════════════════════════════════════════════

// Evaluate classifies doc without touching the cache.
func Evaluate(doc *report.WeeklyReportRecord, sched schedule.Schedule) report.StatusEntry {
	required := sched.RequiredHours(doc.WeekStart)
	reported := doc.ReportedDuration()
	return report.StatusEntry{
		Status:   report.Classify(reported, required),
		Reported: reported,
		Required: required,
	}
}

// Calculate returns the status of doc's week. A memoized entry is reused
// only when it was computed from the same reported and required hours.
func (e *Engine) Calculate(ctx context.Context, doc *report.WeeklyReportRecord, sched schedule.Schedule) (report.StatusEntry, error) {
	if doc == nil {
		return report.StatusEntry{}, shared.NewDomainError("status", "Calculate", shared.ErrValidation, "document is nil")
	}
	key := doc.Key()
	entry := Evaluate(doc, sched)
	if cached, ok := e.lookup(ctx, key, entry.Required); ok && cached.Reported == entry.Reported {
		return cached, nil
	}
	e.remember(ctx, key, entry)
	return entry, nil
}

// Resolver supplies the document of a week that has no usable local draft,
// or nil when no copy exists elsewhere either.
type Resolver func(ctx context.Context, key report.Key) (*report.WeeklyReportRecord, error)

// Status returns the status of a week from its local draft. A week without
// a draft classifies as none and is not memoized: its document may live
// on the portal, which no local change event tracks.
func (e *Engine) Status(ctx context.Context, key report.Key, sched schedule.Schedule) (report.StatusEntry, error) {
	return e.resolve(ctx, key, sched, nil)
}

func (e *Engine) resolve(ctx context.Context, key report.Key, sched schedule.Schedule, fallback Resolver) (report.StatusEntry, error) {
	key = report.NewKey(key.StudentID, key.WeekStart)
	required := sched.RequiredHours(key.WeekStart)
	if entry, ok := e.lookup(ctx, key, required); ok {
		return entry, nil
	}
	if err := ctx.Err(); err != nil {
		return report.StatusEntry{}, err
	}

	res := e.store.Load(ctx, key)
	switch {
	case res.Found():
		entry := Evaluate(res.Doc, sched)
		e.remember(ctx, key, entry)
		return entry, nil
	case errors.Is(res.Err, context.Canceled), errors.Is(res.Err, context.DeadlineExceeded):
		return report.StatusEntry{}, res.Err
	}

	if fallback != nil {
		doc, err := fallback(ctx, key)
		if err != nil {
			return report.StatusEntry{}, err
		}
		if doc != nil {
			return e.Calculate(ctx, doc, sched)
		}
	}
	return report.StatusEntry{Status: report.StatusNone, Required: required}, nil
}

// lookup treats an entry computed against other required hours as a miss:
// shared caches outlive the process and the schedule may have changed.
func (e *Engine) lookup(ctx context.Context, key report.Key, required time.Duration) (report.StatusEntry, bool) {
	entry, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("status cache read failed", logger.ReportKey(key.String()), logger.Err(err))
		ok = false
	}
	if ok && entry.Required != required {
		e.logger.Debug("status computed for another schedule", logger.ReportKey(key.String()))
		ok = false
	}
	metrics.RecordStatusCacheLookup(ok)
	return entry, ok
}

func (e *Engine) remember(ctx context.Context, key report.Key, entry report.StatusEntry) {
	if err := e.cache.Set(ctx, key, entry); err != nil {
		e.logger.Warn("status cache write failed", logger.ReportKey(key.String()), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// OVERVIEW
// ══════════════════════════════════════════════════════════════════════════════

// WeekStatus is one row of an overview.
type WeekStatus struct {
	WeekStart time.Time
	Entry     report.StatusEntry
}

// Overview returns the status of each week, in the order given. Weeks
// without a local draft are passed to fallback when it is not nil.
func (e *Engine) Overview(ctx context.Context, studentID string, weeks []time.Time, sched schedule.Schedule, fallback Resolver) ([]WeekStatus, error) {
	out := make([]WeekStatus, len(weeks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, week := range weeks {
		i, week := i, week
		g.Go(func() error {
			key := report.NewKey(studentID, week)
			entry, err := e.resolve(gctx, key, sched, fallback)
			if err != nil {
				return err
			}
			out[i] = WeekStatus{WeekStart: key.WeekStart, Entry: entry}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Package reporting orchestrates loading, saving and submitting weekly
// reports across the local draft store and the portal.
package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/roboxon/student-app/internal/application/status"
	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/internal/domain/student"
	"github.com/roboxon/student-app/pkg/logger"
	"github.com/roboxon/student-app/pkg/metrics"
	"github.com/roboxon/student-app/pkg/retry"
	"github.com/roboxon/student-app/pkg/timeutil"
)

const defaultAttemptTimeout = 30 * time.Second

// Source tells where LoadWeek found the document.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
	SourceFresh  Source = "fresh"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service is the entry point for report operations of one application.
type Service struct {
	store          report.LocalStore
	remote         report.RemoteGateway
	status         *status.Engine
	journal        report.Journal
	publisher      shared.EventPublisher
	clock          timeutil.Clock
	retrier        *retry.Retrier
	attemptTimeout time.Duration
	logger         *logger.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	journal        report.Journal
	publisher      shared.EventPublisher
	clock          timeutil.Clock
	retryOpts      []retry.Option
	attemptTimeout time.Duration
	logger         *logger.Logger
}

// WithJournal records sync outcomes.
func WithJournal(j report.Journal) Option {
	return func(o *serviceOptions) { o.journal = j }
}

// WithPublisher announces acknowledged submissions.
func WithPublisher(p shared.EventPublisher) Option {
	return func(o *serviceOptions) { o.publisher = p }
}

// WithClock sets the clock for window checks and timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(o *serviceOptions) { o.clock = c }
}

// WithRetry configures submit retries. Only retryable transport failures
// are repeated regardless of the options given.
func WithRetry(opts ...retry.Option) Option {
	return func(o *serviceOptions) { o.retryOpts = append(o.retryOpts, opts...) }
}

// WithAttemptTimeout bounds each remote call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// NewService wires a Service. remote may be nil for offline use; fetches
// then fall through to fresh documents and submits fail.
func NewService(store report.LocalStore, remote report.RemoteGateway, engine *status.Engine, opts ...Option) *Service {
	o := serviceOptions{
		journal:        report.NopJournal{},
		clock:          timeutil.SystemClock{},
		attemptTimeout: defaultAttemptTimeout,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if engine == nil {
		engine = status.NewEngine(nil, store)
	}

	log := o.logger.With(logger.Component("report_service"))
	retryOpts := append(o.retryOpts,
		retry.WithRetryIf(shared.IsRetryable),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("submit attempt failed, retrying",
				logger.Attempt(attempt), logger.Duration("delay", delay), logger.Err(err))
		}),
	)

	return &Service{
		store:          store,
		remote:         remote,
		status:         engine,
		journal:        o.journal,
		publisher:      o.publisher,
		clock:          o.clock,
		retrier:        retry.New(retryOpts...),
		attemptTimeout: o.attemptTimeout,
		logger:         log,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOAD
// ══════════════════════════════════════════════════════════════════════════════

// LoadWeek returns the report for the week containing weekStart: the local
// draft if one is readable, else the portal's copy, else a fresh document
// built from the schedule. Weeks outside the enrollment window fail with a
// validation error. Portal failures other than authentication degrade to
// the fresh document.
func (s *Service) LoadWeek(ctx context.Context, p student.Profile, weekStart time.Time) (*report.WeeklyReportRecord, Source, error) {
	if err := p.Window(s.clock).Validate(weekStart); err != nil {
		return nil, "", err
	}
	key := report.NewKey(p.ID, weekStart)
	log := s.logger.With(logger.StudentID(p.ID), logger.WeekStart(key.WeekStart))

	res := s.store.Load(ctx, key)
	switch res.Outcome {
	case report.LoadOK:
		if res.Found() {
			doc := res.Doc
			s.refresh(doc, p)
			return doc, SourceLocal, nil
		}
	case report.LoadCorrupt:
		log.Warn("ignoring corrupt draft", logger.Err(res.Err))
		s.record(ctx, key, report.JournalDraftCorrupt, 0, res.Err)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	doc, err := s.remoteCopy(ctx, p, key)
	switch {
	case err != nil:
		return nil, "", err
	case doc != nil:
		return doc, SourceRemote, nil
	}
	return report.InitializeWeek(p.ID, key.WeekStart, p.Schedule), SourceFresh, nil
}

// remoteCopy returns the portal's copy of key, or nil when there is none.
// Only authentication failures and cancellation are returned; other fetch
// failures are journaled and read as no copy.
func (s *Service) remoteCopy(ctx context.Context, p student.Profile, key report.Key) (*report.WeeklyReportRecord, error) {
	if s.remote == nil {
		return nil, nil
	}
	doc, err := s.fetch(ctx, key)
	switch {
	case err == nil:
		s.refresh(doc, p)
		return doc, nil
	case shared.IsAuth(err), errors.Is(err, context.Canceled):
		return nil, err
	case !shared.IsNotFound(err):
		s.logger.Warn("remote fetch failed", logger.ReportKey(key.String()), logger.Err(err))
		s.record(ctx, key, report.JournalFetchFailed, 1, err)
	}
	return nil, nil
}

func (s *Service) fetch(ctx context.Context, key report.Key) (*report.WeeklyReportRecord, error) {
	year, week := timeutil.ISOWeek(key.WeekStart)

	actx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	doc, err := s.remote.Fetch(actx, key.StudentID, year, week)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, shared.ErrReportNotFound
	}
	if doc.StudentID == "" {
		doc.StudentID = key.StudentID
	}
	if doc.WeekNumber == 0 {
		doc.Year, doc.WeekNumber = year, week
	}
	if !timeutil.WeekStartOf(doc.Year, doc.WeekNumber).Equal(key.WeekStart) {
		return nil, shared.NewDomainError("report", "Fetch", shared.ErrTransport, "portal returned a report for another week number")
	}
	if err := doc.Validate(); err != nil {
		return nil, shared.WrapError("report", "Fetch", shared.ErrTransport, "portal returned a malformed report", err)
	}
	if got := doc.Key(); got.StudentID != key.StudentID || !got.WeekStart.Equal(key.WeekStart) {
		return nil, shared.NewDomainError("report", "Fetch", shared.ErrTransport, "portal returned report "+got.String())
	}
	return doc, nil
}

// refresh recomputes derived fields against the current schedule.
func (s *Service) refresh(doc *report.WeeklyReportRecord, p student.Profile) {
	doc.SetRequired(p.Schedule.RequiredHours(doc.WeekStart))
	doc.UpdateTotals()
}

// ══════════════════════════════════════════════════════════════════════════════
// SAVE
// ══════════════════════════════════════════════════════════════════════════════

// Save recomputes totals and writes the draft locally. Any failure is
// returned as a *SaveError.
func (s *Service) Save(ctx context.Context, p student.Profile, doc *report.WeeklyReportRecord) error {
	if doc == nil {
		return &SaveError{Key: report.Key{StudentID: p.ID}, Err: shared.NewDomainError("report", "Save", shared.ErrValidation, "document is nil")}
	}
	key := doc.Key()
	if doc.StudentID != p.ID {
		return &SaveError{Key: key, Err: shared.NewDomainError("report", "Save", shared.ErrValidation,
			"report belongs to student "+doc.StudentID)}
	}
	if err := p.Window(s.clock).Validate(doc.WeekStart); err != nil {
		return &SaveError{Key: key, Err: err}
	}

	s.refresh(doc, p)
	if err := s.store.Save(ctx, doc); err != nil {
		s.logger.Error("save failed", logger.ReportKey(key.String()), logger.Err(err))
		return &SaveError{Key: key, Err: err}
	}
	s.logger.Debug("draft saved", logger.ReportKey(key.String()), logger.F("total_hours", doc.TotalHours))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT
// ══════════════════════════════════════════════════════════════════════════════

// SubmitResult describes an acknowledged submission.
type SubmitResult struct {
	Key      report.Key
	Attempts int
	// DraftRemoved is false when the local draft could not be deleted after
	// the portal acknowledged it; Warning then holds the cause.
	DraftRemoved bool
	Warning      error
}

// Submit saves doc locally, sends it to the portal and deletes the local
// draft only after the portal acknowledged it. Transport failures are
// retried with backoff. A save failure is returned as *SaveError, a portal
// failure as *SubmitError; in both cases the draft stays on disk.
func (s *Service) Submit(ctx context.Context, p student.Profile, doc *report.WeeklyReportRecord) (SubmitResult, error) {
	if err := s.Save(ctx, p, doc); err != nil {
		return SubmitResult{}, err
	}
	key := doc.Key()
	result := SubmitResult{Key: key}
	log := s.logger.With(logger.ReportKey(key.String()))

	if s.remote == nil {
		err := &SubmitError{Key: key, Err: shared.NewDomainError("report", "Submit", shared.ErrTransport, "no portal configured")}
		metrics.RecordSubmission(metrics.SubmissionFailed)
		return result, err
	}

	payload := doc.Clone()

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		result.Attempts++
		actx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()

		return s.remote.Submit(actx, payload)
	})
	if err != nil {
		metrics.RecordSubmission(metrics.SubmissionFailed)
		log.Error("submit failed, draft kept",
			logger.Attempt(result.Attempts), logger.Int("max_attempts", s.retrier.MaxAttempts()), logger.Err(err))
		s.record(ctx, key, report.JournalSubmitFailed, result.Attempts, err)
		return result, &SubmitError{Key: key, Attempts: result.Attempts, Err: err}
	}

	// Acknowledged: the portal copy is authoritative from here on.
	doc.MarkSubmitted(timeutil.Stamp(s.clock))
	s.record(ctx, key, report.JournalSubmitted, result.Attempts, nil)
	s.publishSubmitted(key)

	if err := s.store.Remove(ctx, key); err != nil {
		metrics.RecordSubmission(metrics.SubmissionDraftKept)
		log.Warn("draft kept after acknowledged submit", logger.Err(err))
		s.record(ctx, key, report.JournalDraftKept, result.Attempts, err)
		if saveErr := s.store.Save(ctx, doc); saveErr != nil {
			log.Warn("could not mark kept draft as submitted", logger.Err(saveErr))
		}
		result.Warning = err
		return result, nil
	}
	result.DraftRemoved = true
	metrics.RecordSubmission(metrics.SubmissionSubmitted)
	log.Info("report submitted", logger.Attempt(result.Attempts))
	return result, nil
}

func (s *Service) publishSubmitted(key report.Key) {
	if s.publisher == nil {
		return
	}
	event := shared.NewReportChangedEvent(shared.EventReportSubmitted, key.String(), key.StudentID, key.WeekStart)
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Warn("publish submit event failed", logger.ReportKey(key.String()), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status classifies the week containing weekStart.
func (s *Service) Status(ctx context.Context, p student.Profile, weekStart time.Time) (report.StatusEntry, error) {
	doc, _, err := s.LoadWeek(ctx, p, weekStart)
	if err != nil {
		return report.StatusEntry{}, err
	}
	return s.status.Calculate(ctx, doc, p.Schedule)
}

// Overview classifies every reportable week of the profile, oldest first.
// Weeks without a local draft are classified from the portal's copy, as
// LoadWeek would find them.
func (s *Service) Overview(ctx context.Context, p student.Profile) ([]status.WeekStatus, error) {
	fallback := func(ctx context.Context, key report.Key) (*report.WeeklyReportRecord, error) {
		return s.remoteCopy(ctx, p, key)
	}
	return s.status.Overview(ctx, p.ID, p.Window(s.clock).Weeks(), p.Schedule, fallback)
}

func (s *Service) record(ctx context.Context, key report.Key, kind report.JournalKind, attempts int, cause error) {
	entry := report.JournalEntry{
		StudentID: key.StudentID,
		WeekStart: key.WeekStart,
		Kind:      kind,
		Attempts:  attempts,
		At:        timeutil.Stamp(s.clock),
	}
	if cause != nil {
		entry.Detail = cause.Error()
	}
	// The journal is diagnostic; a cancelled caller still gets its entry.
	if err := s.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("journal write failed", logger.ReportKey(key.String()), logger.Outcome(string(kind)), logger.Err(err))
		return
	}
	s.logger.Debug("sync outcome recorded", logger.ReportKey(key.String()), logger.Outcome(string(kind)), logger.Attempt(attempts))
}

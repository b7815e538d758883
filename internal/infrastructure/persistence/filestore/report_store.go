package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/pkg/logger"
	"github.com/roboxon/student-app/pkg/metrics"
	"github.com/roboxon/student-app/pkg/timeutil"
)

const (
	reportsDir = "reports"
	reportKind = "weekly_report"
	fileExt    = ".json"
)

// ReportStore keeps one draft file per student and week:
// <dataDir>/reports/<student>/<yyyy-mm-dd>.json.
// Save and Remove publish a report change event after touching the file.
type ReportStore struct {
	root      string
	publisher shared.EventPublisher
	logger    *logger.Logger
	clock     timeutil.Clock
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	publisher shared.EventPublisher
	logger    *logger.Logger
	clock     timeutil.Clock
}

// WithPublisher sets the publisher that receives change events.
func WithPublisher(p shared.EventPublisher) Option {
	return func(o *storeOptions) { o.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *storeOptions) { o.logger = l }
}

// WithClock sets the clock used for envelope timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(o *storeOptions) { o.clock = c }
}

func applyOptions(opts []Option) storeOptions {
	o := storeOptions{logger: logger.Nop(), clock: timeutil.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewReportStore creates the reports directory under dataDir.
func NewReportStore(dataDir string, opts ...Option) (*ReportStore, error) {
	root := filepath.Join(dataDir, reportsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	o := applyOptions(opts)
	return &ReportStore{
		root:      root,
		publisher: o.publisher,
		logger:    o.logger.With(logger.Component("report_store")),
		clock:     o.clock,
	}, nil
}

func (s *ReportStore) path(key report.Key) (string, error) {
	key = report.NewKey(key.StudentID, key.WeekStart)
	student, err := sanitizeSegment(key.StudentID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, student, timeutil.FormatDateStr(key.WeekStart)+fileExt), nil
}

// Save validates and writes doc, replacing any previous draft of the week.
func (s *ReportStore) Save(ctx context.Context, doc *report.WeeklyReportRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil {
		return shared.NewDomainError("report", "Save", shared.ErrValidation, "document is nil")
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	key := doc.Key()
	path, err := s.path(key)
	if err != nil {
		return shared.WrapError("report", "Save", shared.ErrValidation, "invalid student id", err)
	}

	data, err := encode(reportKind, timeutil.Stamp(s.clock), doc)
	if err != nil {
		metrics.RecordLocalStore("save", "error")
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := writeAtomic(path, data); err != nil {
		metrics.RecordLocalStore("save", "error")
		return fmt.Errorf("write %s: %w", key, err)
	}
	metrics.RecordLocalStore("save", "ok")

	s.publish(shared.EventReportSaved, key)
	return nil
}

// Load reads the draft for key. A missing file is LoadNotFound; anything
// unreadable or inconsistent with key is LoadCorrupt.
func (s *ReportStore) Load(ctx context.Context, key report.Key) report.LoadResult {
	key = report.NewKey(key.StudentID, key.WeekStart)
	if err := ctx.Err(); err != nil {
		return report.LoadResult{Outcome: report.LoadNotFound, Err: err}
	}
	path, err := s.path(key)
	if err != nil {
		return report.LoadResult{Outcome: report.LoadNotFound, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.RecordLocalStore("load", "not_found")
			return report.LoadResult{Outcome: report.LoadNotFound}
		}
		return s.corrupt(key, err)
	}

	var doc report.WeeklyReportRecord
	if err := decode(reportKind, data, &doc); err != nil {
		return s.corrupt(key, err)
	}
	if got := doc.Key(); got.StudentID != key.StudentID || !got.WeekStart.Equal(key.WeekStart) {
		return s.corrupt(key, fmt.Errorf("file holds %s", got))
	}
	if err := doc.Validate(); err != nil {
		return s.corrupt(key, err)
	}

	metrics.RecordLocalStore("load", "ok")
	return report.LoadResult{Doc: &doc, Outcome: report.LoadOK}
}

func (s *ReportStore) corrupt(key report.Key, cause error) report.LoadResult {
	metrics.RecordLocalStore("load", "corrupt")
	s.logger.Warn("corrupt report draft", logger.ReportKey(key.String()), logger.Err(cause))
	return report.LoadResult{
		Outcome: report.LoadCorrupt,
		Err:     shared.WrapError("report", "Load", shared.ErrCorruptCache, "unreadable draft "+key.String(), cause),
	}
}

// Remove deletes the draft for key if present. The change event is
// published on every return, whether or not a file existed.
func (s *ReportStore) Remove(ctx context.Context, key report.Key) error {
	key = report.NewKey(key.StudentID, key.WeekStart)
	defer s.publish(shared.EventReportRemoved, key)

	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return shared.WrapError("report", "Remove", shared.ErrValidation, "invalid student id", err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		metrics.RecordLocalStore("remove", "error")
		return fmt.Errorf("remove %s: %w", key, err)
	}
	metrics.RecordLocalStore("remove", "ok")
	return nil
}

// Exists reports whether a draft file exists for key, without reading it.
func (s *ReportStore) Exists(_ context.Context, key report.Key) bool {
	path, err := s.path(key)
	if err != nil {
		return false
	}
	return isRegularFile(path)
}

// Weeks lists the week starts that have a draft for studentID, oldest first.
func (s *ReportStore) Weeks(ctx context.Context, studentID string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	student, err := sanitizeSegment(studentID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, student))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var weeks []time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		week, err := time.Parse(timeutil.FormatDate, strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		weeks = append(weeks, week)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Before(weeks[j]) })
	return weeks, nil
}

func (s *ReportStore) publish(eventType shared.EventType, key report.Key) {
	if s.publisher == nil {
		return
	}
	event := shared.NewReportChangedEvent(eventType, key.String(), key.StudentID, key.WeekStart)
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Warn("publish report change failed",
			logger.ReportKey(key.String()),
			logger.String("event_type", string(eventType)),
			logger.Err(err),
		)
	}
}

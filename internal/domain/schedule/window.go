package schedule

import (
	"time"

	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/pkg/timeutil"
)

// Window is the enrollment window of a student: the inclusive range of
// week starts between the join week, the exit week and the current week.
//
// Join and Exit are raw profile strings. A missing or unparseable join date
// degrades to the "not in the future" rule instead of failing; an
// unparseable exit date is ignored the same way.
type Window struct {
	Join  string
	Exit  string
	Clock timeutil.Clock
}

// NewWindow creates a Window. A nil clock reads the system time.
func NewWindow(join, exit string, clock timeutil.Clock) Window {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return Window{Join: join, Exit: exit, Clock: clock}
}

func (w Window) clock() timeutil.Clock {
	if w.Clock == nil {
		return timeutil.SystemClock{}
	}
	return w.Clock
}

// CurrentWeek returns the week start of today.
func (w Window) CurrentWeek() time.Time {
	return timeutil.StartOfWeek(timeutil.Today(w.clock()))
}

func weekOf(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	d, err := timeutil.ParseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	return timeutil.StartOfWeek(d), true
}

// IsReportingAllowed reports whether weekStart may be reported. It fails
// closed: the week must never be in the future, must not precede the join
// week and must not follow the exit week when those dates are known.
func (w Window) IsReportingAllowed(weekStart time.Time) bool {
	week := timeutil.StartOfWeek(weekStart)
	today := timeutil.Today(w.clock())

	if week.After(today) {
		return false
	}
	if join, ok := weekOf(w.Join); ok && week.Before(join) {
		return false
	}
	if exit, ok := weekOf(w.Exit); ok && week.After(exit) {
		return false
	}
	return true
}

// Validate returns ErrWeekOutsideWindow when weekStart may not be reported.
func (w Window) Validate(weekStart time.Time) error {
	if !w.IsReportingAllowed(weekStart) {
		return shared.WrapError("schedule", "Validate", shared.ErrValidation,
			"week "+timeutil.FormatDateStr(timeutil.StartOfWeek(weekStart))+" is outside the enrollment window",
			shared.ErrWeekOutsideWindow)
	}
	return nil
}

// FirstValidWeek returns the join week, or the current week when the join
// date is absent or unparseable.
func (w Window) FirstValidWeek() time.Time {
	if join, ok := weekOf(w.Join); ok {
		return join
	}
	return w.CurrentWeek()
}

// LastValidWeek returns the exit week, or the current week when the exit
// date is absent or unparseable.
func (w Window) LastValidWeek() time.Time {
	if exit, ok := weekOf(w.Exit); ok {
		return exit
	}
	return w.CurrentWeek()
}

// Weeks lists every reportable week start, oldest first.
func (w Window) Weeks() []time.Time {
	last := w.LastValidWeek()
	if current := w.CurrentWeek(); last.After(current) {
		last = current
	}

	var weeks []time.Time
	for week := w.FirstValidWeek(); !week.After(last); week = week.AddDate(0, 0, 7) {
		if w.IsReportingAllowed(week) {
			weeks = append(weeks, week)
		}
	}
	return weeks
}

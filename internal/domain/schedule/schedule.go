// Package schedule models a student's weekly working hours and the
// enrollment window that bounds which weeks may be reported.
// Pure computation - no I/O.
package schedule

import (
	"time"

	"github.com/roboxon/student-app/pkg/timeutil"
)

// WorkingDay is one weekday's working hours from the student's profile.
type WorkingDay struct {
	// Weekday is 1 for Monday through 7 for Sunday.
	Weekday int    `json:"weekday" yaml:"weekday" validate:"min=1,max=7"`
	Start   string `json:"start" yaml:"start" validate:"required"`
	End     string `json:"end" yaml:"end" validate:"required"`
}

// Hours returns the start and end offsets from midnight. ok is false when
// either clock value is unparseable or the range is empty.
func (d WorkingDay) Hours() (start, end time.Duration, ok bool) {
	start, err := timeutil.ParseClock(d.Start)
	if err != nil {
		return 0, 0, false
	}
	end, err = timeutil.ParseClock(d.End)
	if err != nil {
		return 0, 0, false
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}

// Duration returns End-Start, or zero for an unusable entry.
func (d WorkingDay) Duration() time.Duration {
	start, end, ok := d.Hours()
	if !ok {
		return 0
	}
	return end - start
}

// Schedule is the read-only working-day table of a student.
type Schedule []WorkingDay

// For returns the entry for the weekday of date. The first matching entry
// wins when a profile lists a weekday twice.
func (s Schedule) For(date time.Time) (WorkingDay, bool) {
	weekday := timeutil.ISOWeekday(date)
	for _, d := range s {
		if d.Weekday == weekday {
			return d, true
		}
	}
	return WorkingDay{}, false
}

// RequiredHours sums the scheduled working time of the seven days starting
// at weekStart. Days without a matching entry contribute zero.
func (s Schedule) RequiredHours(weekStart time.Time) time.Duration {
	var total time.Duration
	for _, day := range timeutil.WeekDays(timeutil.StartOfWeek(weekStart)) {
		if wd, ok := s.For(day); ok {
			total += wd.Duration()
		}
	}
	return total
}

// IsEmpty reports whether no weekday has usable working hours.
func (s Schedule) IsEmpty() bool {
	for _, d := range s {
		if d.Duration() > 0 {
			return false
		}
	}
	return true
}

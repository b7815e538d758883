// Package timeutil provides the calendar arithmetic used by weekly reporting:
// civil dates, ISO weeks that start on Monday, clock-of-day parsing and the
// fixed set of date layouts accepted from student profiles.
//
// Dates are represented as time.Time values at midnight UTC of the civil day,
// so two dates compare equal regardless of the zone they were parsed in.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the clock format used by working hours (HH:MM).
	FormatTime = "15:04"
	// FormatTimeSeconds is the clock format with seconds.
	FormatTimeSeconds = "15:04:05"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
	// FormatDottedDate is the day-first dotted format (DD.MM.YYYY).
	FormatDottedDate = "02.01.2006"
	// FormatSlashedDate is the US month-first format (MM/DD/YYYY).
	FormatSlashedDate = "01/02/2006"
)

// DateLayouts lists every layout ParseDate accepts, in the order tried.
var DateLayouts = []string{
	FormatDate,
	time.RFC3339,
	FormatDateTimeSeconds,
	FormatDottedDate,
	FormatSlashedDate,
}

// ErrUnparseableDate is returned when no layout in DateLayouts matches.
var ErrUnparseableDate = errors.New("timeutil: unparseable date")

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock supplies the current time. Enrollment rules depend on "today", so
// every component that asks for it takes a Clock instead of calling time.Now.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Today returns the civil date of the clock's current time.
func Today(c Clock) time.Time {
	return Date(c.Now())
}

// Stamp returns the clock's current time in UTC truncated to whole seconds.
// Stamps survive a JSON round trip unchanged.
func Stamp(c Clock) time.Time {
	return c.Now().UTC().Truncate(time.Second)
}

// ══════════════════════════════════════════════════════════════════════════════
// CIVIL DATES AND WEEKS
// ══════════════════════════════════════════════════════════════════════════════

// Date returns midnight UTC of t's calendar day in t's own location.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return weekday
}

// StartOfWeek returns the Monday of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	d := Date(t)
	return d.AddDate(0, 0, -(ISOWeekday(d) - 1))
}

// EndOfWeek returns the Sunday of the week containing t.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 6)
}

// WeekDays returns the seven dates of the week starting at weekStart.
func WeekDays(weekStart time.Time) [7]time.Time {
	var days [7]time.Time
	start := Date(weekStart)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

// ISOWeek returns the ISO year and week number of t.
func ISOWeek(t time.Time) (year, week int) {
	return Date(t).ISOWeek()
}

// WeekStartOf returns the Monday of the given ISO year and week.
func WeekStartOf(year, week int) time.Time {
	// January 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	return StartOfWeek(jan4).AddDate(0, 0, (week-1)*7)
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	return Date(t1).Equal(Date(t2))
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSING AND FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

// ParseDate parses value with each of DateLayouts and returns the civil date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrUnparseableDate
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return Date(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, value)
}

// ParseClock parses an "HH:MM" or "HH:MM:SS" time of day into an offset
// from midnight.
func ParseClock(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{FormatTime, FormatTimeSeconds} {
		t, err := time.Parse(layout, value)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("timeutil: invalid clock value %q", value)
}

// FormatDateStr formats a date as YYYY-MM-DD.
func FormatDateStr(t time.Time) string {
	return t.Format(FormatDate)
}

// FormatClock formats the time of day of t as HH:MM.
func FormatClock(t time.Time) string {
	return t.Format(FormatTime)
}

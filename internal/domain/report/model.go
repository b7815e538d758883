// Package report contains the weekly report document: its structure,
// construction from a working-day schedule, aggregation of reported hours
// and the status classification derived from them.
package report

import (
	"math"
	"time"

	"github.com/roboxon/student-app/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Key identifies a weekly report. It is stable once created and names both
// the local draft file and the status cache entry.
type Key struct {
	StudentID string
	WeekStart time.Time
}

// NewKey builds a key, normalizing weekStart to its Monday.
func NewKey(studentID string, weekStart time.Time) Key {
	return Key{StudentID: studentID, WeekStart: timeutil.StartOfWeek(weekStart)}
}

// String returns "<student>/<yyyy-mm-dd>".
func (k Key) String() string {
	return k.StudentID + "/" + timeutil.FormatDateStr(k.WeekStart)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

// HourlyReportSlot is a single hourly entry of a day. Its identity is the
// owning day plus the [Start, End) range.
type HourlyReportSlot struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	SubjectID   *int64    `json:"subject_id,omitempty"`
	SubjectName string    `json:"subject_name,omitempty"`
	TopicID     *int64    `json:"topic_id,omitempty"`
	TopicName   string    `json:"topic_name,omitempty"`
	Description string    `json:"description"`
	Submitted   bool      `json:"submitted"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Duration returns the length of the slot.
func (s HourlyReportSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// IsReported reports whether the slot counts towards reported hours: it
// needs a description.
func (s HourlyReportSlot) IsReported() bool {
	return hasText(s.Description)
}

// DailyReportRecord holds one day's slots in chronological order.
type DailyReportRecord struct {
	Date          time.Time          `json:"date"`
	Slots         []HourlyReportSlot `json:"slots"`
	Summary       string             `json:"summary"`
	HoursReported float64            `json:"hours_reported"`
}

// ReportedDuration sums the durations of reported slots.
func (d DailyReportRecord) ReportedDuration() time.Duration {
	var total time.Duration
	for _, s := range d.Slots {
		if s.IsReported() {
			total += s.Duration()
		}
	}
	return total
}

// WeeklyReportRecord is the document edited offline, cached on disk and
// submitted to the portal. Days always holds seven consecutive records
// starting on the Monday WeekStart.
type WeeklyReportRecord struct {
	StudentID  string              `json:"student_id"`
	WeekNumber int                 `json:"week_number"`
	Year       int                 `json:"year"`
	WeekStart  time.Time           `json:"week_start"`
	WeekEnd    time.Time           `json:"week_end"`
	Days       []DailyReportRecord `json:"days"`
	Summary    string              `json:"summary"`
	TotalHours float64             `json:"total_hours"`
	SubjectIDs []int64             `json:"subject_ids"`
	IsComplete bool                `json:"is_complete"`

	// RequiredHours is the scheduled time for the week, captured when the
	// document is built and refreshed whenever it is loaded for a profile.
	RequiredHours float64 `json:"required_hours"`
}

// Key returns the identity of the document.
func (w *WeeklyReportRecord) Key() Key {
	return NewKey(w.StudentID, w.WeekStart)
}

// ReportedDuration sums reported slot durations over the whole week.
func (w *WeeklyReportRecord) ReportedDuration() time.Duration {
	var total time.Duration
	for _, d := range w.Days {
		total += d.ReportedDuration()
	}
	return total
}

// RequiredDuration returns RequiredHours as a duration rounded to the minute.
func (w *WeeklyReportRecord) RequiredDuration() time.Duration {
	return time.Duration(math.Round(w.RequiredHours*60)) * time.Minute
}

// SetRequired records the scheduled time for the week.
func (w *WeeklyReportRecord) SetRequired(required time.Duration) {
	w.RequiredHours = required.Hours()
}

// Day returns the record for date, if it belongs to the week.
func (w *WeeklyReportRecord) Day(date time.Time) (*DailyReportRecord, bool) {
	for i := range w.Days {
		if timeutil.IsSameDay(w.Days[i].Date, date) {
			return &w.Days[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the document.
func (w *WeeklyReportRecord) Clone() *WeeklyReportRecord {
	if w == nil {
		return nil
	}
	out := *w
	if w.SubjectIDs != nil {
		out.SubjectIDs = append([]int64(nil), w.SubjectIDs...)
	}
	if w.Days != nil {
		out.Days = make([]DailyReportRecord, len(w.Days))
		for i, d := range w.Days {
			out.Days[i] = d
			if d.Slots != nil {
				out.Days[i].Slots = make([]HourlyReportSlot, len(d.Slots))
				for j, s := range d.Slots {
					out.Days[i].Slots[j] = s
					out.Days[i].Slots[j].SubjectID = cloneID(s.SubjectID)
					out.Days[i].Slots[j].TopicID = cloneID(s.TopicID)
				}
			}
		}
	}
	return &out
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

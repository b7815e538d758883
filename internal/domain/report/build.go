package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roboxon/student-app/internal/domain/schedule"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTRUCTION
// ══════════════════════════════════════════════════════════════════════════════

// SlotLength is the fixed length of a generated slot.
const SlotLength = time.Hour

// InitializeWeek builds an empty report for the week containing weekStart.
// The result always has seven days; working days get contiguous one-hour
// slots from the scheduled start, and a trailing partial hour is dropped.
func InitializeWeek(studentID string, weekStart time.Time, sched schedule.Schedule) *WeeklyReportRecord {
	start := timeutil.StartOfWeek(weekStart)
	year, week := timeutil.ISOWeek(start)

	w := &WeeklyReportRecord{
		StudentID:  studentID,
		WeekNumber: week,
		Year:       year,
		WeekStart:  start,
		WeekEnd:    timeutil.EndOfWeek(start),
		Days:       make([]DailyReportRecord, 0, 7),
	}
	for _, day := range timeutil.WeekDays(start) {
		w.Days = append(w.Days, DailyReportRecord{
			Date:  day,
			Slots: slotsFor(day, sched),
		})
	}
	w.SetRequired(sched.RequiredHours(start))
	w.UpdateTotals()
	return w
}

func slotsFor(day time.Time, sched schedule.Schedule) []HourlyReportSlot {
	slots := make([]HourlyReportSlot, 0)
	wd, ok := sched.For(day)
	if !ok {
		return slots
	}
	from, to, ok := wd.Hours()
	if !ok {
		return slots
	}
	for cur := from; cur+SlotLength <= to; cur += SlotLength {
		slots = append(slots, HourlyReportSlot{
			Start: day.Add(cur),
			End:   day.Add(cur + SlotLength),
		})
	}
	return slots
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION
// ══════════════════════════════════════════════════════════════════════════════

// UpdateTotals recomputes per-day hours, the weekly total, the distinct
// subject set and the completeness flag. Repeated calls without edits in
// between yield the same document.
func (w *WeeklyReportRecord) UpdateTotals() {
	var total time.Duration
	seen := make(map[int64]struct{})
	var subjects []int64

	for i := range w.Days {
		day := &w.Days[i]
		reported := day.ReportedDuration()
		day.HoursReported = reported.Hours()
		total += reported

		for _, s := range day.Slots {
			if s.SubjectID == nil {
				continue
			}
			if _, dup := seen[*s.SubjectID]; dup {
				continue
			}
			seen[*s.SubjectID] = struct{}{}
			subjects = append(subjects, *s.SubjectID)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i] < subjects[j] })

	w.TotalHours = total.Hours()
	w.SubjectIDs = subjects
	w.IsComplete = Classify(total, w.RequiredDuration()) == StatusComplete
}

// ══════════════════════════════════════════════════════════════════════════════
// EDITING
// ══════════════════════════════════════════════════════════════════════════════

// SlotEdit is the user-editable part of a slot.
type SlotEdit struct {
	SubjectID   *int64
	SubjectName string
	TopicID     *int64
	TopicName   string
	Description string
}

// SetSlot applies edit to the slot starting at start. An edited slot is no
// longer considered submitted.
func (w *WeeklyReportRecord) SetSlot(start time.Time, edit SlotEdit, at time.Time) error {
	day, ok := w.Day(start)
	if !ok {
		return fmt.Errorf("set slot %s: %w", start.Format(timeutil.FormatDateTimeSeconds), shared.ErrSlotNotFound)
	}
	for i := range day.Slots {
		s := &day.Slots[i]
		if !s.Start.Equal(start) {
			continue
		}
		s.SubjectID = cloneID(edit.SubjectID)
		s.SubjectName = edit.SubjectName
		s.TopicID = cloneID(edit.TopicID)
		s.TopicName = edit.TopicName
		s.Description = edit.Description
		s.Submitted = false
		s.UpdatedAt = at
		w.UpdateTotals()
		return nil
	}
	return fmt.Errorf("set slot %s: %w", start.Format(timeutil.FormatDateTimeSeconds), shared.ErrSlotNotFound)
}

// SetDailySummary replaces the summary of the day containing date.
func (w *WeeklyReportRecord) SetDailySummary(date time.Time, summary string) error {
	day, ok := w.Day(date)
	if !ok {
		return shared.NewDomainError("report", "SetDailySummary", shared.ErrValidation,
			"date "+timeutil.FormatDateStr(date)+" is not part of week "+timeutil.FormatDateStr(w.WeekStart))
	}
	day.Summary = summary
	return nil
}

// SetSummary replaces the weekly summary.
func (w *WeeklyReportRecord) SetSummary(summary string) {
	w.Summary = summary
}

// MarkSubmitted flags every slot as submitted.
func (w *WeeklyReportRecord) MarkSubmitted(at time.Time) {
	for i := range w.Days {
		for j := range w.Days[i].Slots {
			w.Days[i].Slots[j].Submitted = true
			w.Days[i].Slots[j].UpdatedAt = at
		}
	}
}

// IsSubmitted reports whether the week has slots and all of them are submitted.
func (w *WeeklyReportRecord) IsSubmitted() bool {
	found := false
	for _, d := range w.Days {
		for _, s := range d.Slots {
			if !s.Submitted {
				return false
			}
			found = true
		}
	}
	return found
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate checks the structural invariants of the document.
func (w *WeeklyReportRecord) Validate() error {
	if strings.TrimSpace(w.StudentID) == "" {
		return shared.NewDomainError("report", "Validate", shared.ErrValidation, "student id is required")
	}
	if !w.WeekStart.Equal(timeutil.StartOfWeek(w.WeekStart)) {
		return shared.ErrWeekNotMonday
	}
	if !w.WeekEnd.Equal(timeutil.EndOfWeek(w.WeekStart)) || len(w.Days) != 7 {
		return shared.ErrMalformedWeek
	}
	for i, day := range timeutil.WeekDays(w.WeekStart) {
		if !w.Days[i].Date.Equal(day) {
			return shared.ErrMalformedWeek
		}
	}
	return nil
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/roboxon/student-app/internal/application/reporting"
	"github.com/roboxon/student-app/internal/application/status"
	"github.com/roboxon/student-app/internal/domain/curriculum"
	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/pkg/timeutil"
)

func formatHours(d time.Duration) string {
	return strconv.FormatFloat(d.Hours(), 'f', -1, 64) + "h"
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printWeek(doc *report.WeeklyReportRecord, src reporting.Source, entry report.StatusEntry) error {
	if c.asJSON {
		return c.printJSON(struct {
			Source reporting.Source           `json:"source"`
			Status report.StatusEntry         `json:"status"`
			Report *report.WeeklyReportRecord `json:"report"`
		}{src, entry, doc})
	}

	fmt.Fprintf(c.out, "Week %d/%d  %s .. %s  (%s)\n", doc.WeekNumber, doc.Year,
		timeutil.FormatDateStr(doc.WeekStart), timeutil.FormatDateStr(doc.WeekEnd), src)
	fmt.Fprintf(c.out, "Status: %s  %s of %s\n\n", entry.Status, formatHours(entry.Reported), formatHours(entry.Required))

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tSLOT\tSUBJECT\tDESCRIPTION\tSENT")
	for _, day := range doc.Days {
		if len(day.Slots) == 0 {
			continue
		}
		for _, slot := range day.Slots {
			sent := ""
			if slot.Submitted {
				sent = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s-%s\t%s\t%s\t%s\n",
				day.Date.Format("Mon 02"),
				slot.Start.Format(timeutil.FormatTime), slot.End.Format(timeutil.FormatTime),
				slot.SubjectName, slot.Description, sent)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if doc.Summary != "" {
		fmt.Fprintf(c.out, "\nSummary: %s\n", doc.Summary)
	}
	return nil
}

func (c *cli) printStatuses(rows []status.WeekStatus) error {
	if c.asJSON {
		type row struct {
			WeekStart string             `json:"week_start"`
			Status    report.StatusEntry `json:"status"`
		}
		out := make([]row, len(rows))
		for i, r := range rows {
			out[i] = row{timeutil.FormatDateStr(r.WeekStart), r.Entry}
		}
		return c.printJSON(out)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WEEK\tSTATUS\tREPORTED\tREQUIRED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", timeutil.FormatDateStr(r.WeekStart),
			r.Entry.Status, formatHours(r.Entry.Reported), formatHours(r.Entry.Required))
	}
	return tw.Flush()
}

func (c *cli) printRelease(r *curriculum.Release) error {
	if c.asJSON {
		return c.printJSON(r)
	}

	fmt.Fprintf(c.out, "Release %d %s: %s (%d lessons)\n", r.ID, r.Version, r.Program.Name, r.LessonCount())
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBJECT\tTOPIC\tNAME")
	for _, s := range r.Program.Subjects {
		fmt.Fprintf(tw, "%d\t\t%s\n", s.ID, s.Name)
		for _, t := range s.Topics {
			fmt.Fprintf(tw, "\t%d\t%s\n", t.ID, t.Name)
		}
	}
	return tw.Flush()
}

func (c *cli) printJournal(entries []report.JournalEntry) error {
	if c.asJSON {
		return c.printJSON(entries)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tWEEK\tKIND\tATTEMPTS\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.At.Format(time.RFC3339),
			timeutil.FormatDateStr(e.WeekStart), e.Kind, e.Attempts, e.Detail)
	}
	return tw.Flush()
}

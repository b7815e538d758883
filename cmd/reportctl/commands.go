package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roboxon/student-app/config"
	"github.com/roboxon/student-app/internal/application/reporting"
	"github.com/roboxon/student-app/internal/application/status"
	"github.com/roboxon/student-app/internal/domain/report"
	"github.com/roboxon/student-app/internal/domain/student"
	"github.com/roboxon/student-app/internal/infrastructure/persistence/postgres"
	"github.com/roboxon/student-app/pkg/logger"
	"github.com/roboxon/student-app/pkg/timeutil"
)

// cli carries flag values and the lazily wired app between commands.
type cli struct {
	out    io.Writer
	errOut io.Writer
	clock  timeutil.Clock

	configPath string
	envFile    string
	offline    bool
	logLevel   string
	asJSON     bool

	app *app
}

func newCLI(out, errOut io.Writer, clock timeutil.Clock) *cli {
	return &cli{out: out, errOut: errOut, clock: clock}
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Offline-first weekly learning reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	flags.StringVar(&c.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	flags.BoolVar(&c.offline, "offline", false, "never contact the portal")
	flags.StringVar(&c.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	flags.BoolVar(&c.asJSON, "json", false, "print JSON instead of tables")

	root.AddCommand(
		c.showCommand(),
		c.draftCommand(),
		c.editCommand(),
		c.summaryCommand(),
		c.submitCommand(),
		c.statusCommand(),
		c.overviewCommand(),
		c.cacheResetCommand(),
		c.draftsCommand(),
		c.releaseCommand(),
		c.journalCommand(),
		c.migrateCommand(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if err := loadEnvFile(c.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.offline {
		cfg.Portal.Offline = true
	}
	if c.logLevel != "" {
		cfg.Observability.LogLevel = c.logLevel
	}

	c.app, err = newApp(cmd.Context(), cfg, c.clock, c.errOut)
	return err
}

// loadEnvFile loads path into the environment without overriding variables
// already set. The default .env is optional; an explicit file is not.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FLAG HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// weekFlag resolves a --week value to a Monday. Empty means the current
// week of the enrollment window.
func (c *cli) weekFlag(p student.Profile, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return p.Window(c.clock).CurrentWeek(), nil
	}
	d, err := timeutil.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--week: %w", err)
	}
	return timeutil.StartOfWeek(d), nil
}

// parseSlotStart parses "YYYY-MM-DD HH:MM" (or with a T separator).
func parseSlotStart(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	datePart, clockPart, ok := strings.Cut(value, " ")
	if !ok {
		datePart, clockPart, ok = strings.Cut(value, "T")
	}
	if !ok {
		return time.Time{}, fmt.Errorf("slot start %q: want \"YYYY-MM-DD HH:MM\"", value)
	}
	d, err := timeutil.ParseDate(datePart)
	if err != nil {
		return time.Time{}, err
	}
	offset, err := timeutil.ParseClock(clockPart)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(offset), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) showCommand() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a week's report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			weekStart, err := c.weekFlag(p, week)
			if err != nil {
				return err
			}
			doc, src, err := c.app.service.LoadWeek(cmd.Context(), p, weekStart)
			if err != nil {
				return err
			}
			return c.printWeek(doc, src, status.Evaluate(doc, p.Schedule))
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any date in the week (default current week)")
	return cmd
}

func (c *cli) draftCommand() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Create or refresh the local draft of a week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			weekStart, err := c.weekFlag(p, week)
			if err != nil {
				return err
			}
			doc, src, err := c.app.service.LoadWeek(cmd.Context(), p, weekStart)
			if err != nil {
				return err
			}
			if err := c.app.service.Save(cmd.Context(), p, doc); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "draft saved for week %s (from %s)\n", timeutil.FormatDateStr(doc.WeekStart), src)
			return nil
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any date in the week (default current week)")
	return cmd
}

func (c *cli) editCommand() *cobra.Command {
	var (
		at          string
		description string
		subjectID   int64
		subjectName string
		topicID     int64
		topicName   string
	)
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Describe what was done in one hourly slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			start, err := parseSlotStart(at)
			if err != nil {
				return err
			}

			edit := report.SlotEdit{
				SubjectName: subjectName,
				TopicName:   topicName,
				Description: description,
			}
			if subjectID > 0 {
				edit.SubjectID = &subjectID
			}
			if topicID > 0 {
				edit.TopicID = &topicID
			}
			c.fillCurriculumNames(cmd, p, &edit)

			doc, _, err := c.app.service.LoadWeek(ctx, p, timeutil.StartOfWeek(start))
			if err != nil {
				return err
			}
			if err := doc.SetSlot(start, edit, timeutil.Stamp(c.clock)); err != nil {
				return err
			}
			if err := c.app.service.Save(ctx, p, doc); err != nil {
				return err
			}
			entry, err := c.app.service.Status(ctx, p, doc.WeekStart)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "slot %s saved; week is %s (%s of %s)\n",
				start.Format("2006-01-02 15:04"), entry.Status, formatHours(entry.Reported), formatHours(entry.Required))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&at, "at", "", `slot start, "YYYY-MM-DD HH:MM"`)
	f.StringVar(&description, "description", "", "what was done")
	f.Int64Var(&subjectID, "subject", 0, "subject id from the curriculum release")
	f.StringVar(&subjectName, "subject-name", "", "subject name")
	f.Int64Var(&topicID, "topic", 0, "topic id from the curriculum release")
	f.StringVar(&topicName, "topic-name", "", "topic name")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

// fillCurriculumNames completes subject and topic names from the cached
// release. Missing releases are not an error; names stay as given.
func (c *cli) fillCurriculumNames(cmd *cobra.Command, p student.Profile, edit *report.SlotEdit) {
	if edit.SubjectID == nil || !p.HasRelease() || !c.app.release.IsValid(cmd.Context(), p.ReleaseID) {
		return
	}
	release, err := c.app.release.Get(cmd.Context(), p, false)
	if err != nil {
		c.app.log.Debug("release unavailable for slot names", logger.Err(err))
		return
	}
	subject, ok := release.Subject(*edit.SubjectID)
	if !ok {
		return
	}
	if edit.SubjectName == "" {
		edit.SubjectName = subject.Name
	}
	if edit.TopicID != nil && edit.TopicName == "" {
		if topic, ok := subject.Topic(*edit.TopicID); ok {
			edit.TopicName = topic.Name
		}
	}
}

func (c *cli) summaryCommand() *cobra.Command {
	var week, day string
	cmd := &cobra.Command{
		Use:   "summary TEXT",
		Short: "Set the weekly summary, or a day's summary with --day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			if day != "" && week == "" {
				week = day
			}
			weekStart, err := c.weekFlag(p, week)
			if err != nil {
				return err
			}
			doc, _, err := c.app.service.LoadWeek(ctx, p, weekStart)
			if err != nil {
				return err
			}
			if day == "" {
				doc.SetSummary(args[0])
			} else {
				date, err := timeutil.ParseDate(day)
				if err != nil {
					return fmt.Errorf("--day: %w", err)
				}
				if err := doc.SetDailySummary(date, args[0]); err != nil {
					return err
				}
			}
			if err := c.app.service.Save(ctx, p, doc); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "summary saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any date in the week (default current week)")
	cmd.Flags().StringVar(&day, "day", "", "date of the day to summarize")
	return cmd
}

func (c *cli) submitCommand() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send a week's report to the portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			weekStart, err := c.weekFlag(p, week)
			if err != nil {
				return err
			}
			doc, _, err := c.app.service.LoadWeek(ctx, p, weekStart)
			if err != nil {
				return err
			}
			res, err := c.app.service.Submit(ctx, p, doc)
			if err != nil {
				var submitErr *reporting.SubmitError
				if errors.As(err, &submitErr) {
					return fmt.Errorf("%w (draft kept)", err)
				}
				return err
			}
			fmt.Fprintf(c.out, "week %s submitted after %d attempt(s)\n", timeutil.FormatDateStr(res.Key.WeekStart), res.Attempts)
			if res.Warning != nil {
				fmt.Fprintf(c.errOut, "warning: %v\n", res.Warning)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any date in the week (default current week)")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) statusCommand() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a week is reported",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			weekStart, err := c.weekFlag(p, week)
			if err != nil {
				return err
			}
			entry, err := c.app.service.Status(cmd.Context(), p, weekStart)
			if err != nil {
				return err
			}
			return c.printStatuses([]status.WeekStatus{{WeekStart: weekStart, Entry: entry}})
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any date in the week (default current week)")
	return cmd
}

func (c *cli) overviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show the status of every week of the enrollment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			rows, err := c.app.service.Overview(cmd.Context(), p)
			if err != nil {
				return err
			}
			return c.printStatuses(rows)
		},
	}
}

func (c *cli) cacheResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-reset",
		Short: "Forget every memoized week status of the student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			if err := c.app.engine.Reset(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "status cache cleared for %s\n", p.ID)
			return nil
		},
	}
}

func (c *cli) draftsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drafts",
		Short: "List weeks with a local draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			weeks, err := c.app.reports.Weeks(ctx, p.ID)
			if err != nil {
				return err
			}
			rows, err := c.app.engine.Overview(ctx, p.ID, weeks, p.Schedule, nil)
			if err != nil {
				return err
			}
			return c.printStatuses(rows)
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM AND JOURNAL COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) releaseCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Show the curriculum release assigned to the student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			release, err := c.app.release.Get(cmd.Context(), p, refresh)
			if err != nil {
				return err
			}
			return c.printRelease(release)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch from the portal even when cached")
	return cmd
}

func (c *cli) journalCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent sync outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.app.journal == nil {
				return errNoDatabase
			}
			p, err := c.app.profile()
			if err != nil {
				return err
			}
			entries, err := c.app.journal.Recent(cmd.Context(), p.ID, limit)
			if err != nil {
				return err
			}
			return c.printJournal(entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	return cmd
}

func (c *cli) migrateCommand() *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back one) sync journal migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.app.db == nil {
				return errNoDatabase
			}
			ctx := cmd.Context()
			migrator := postgres.NewMigrator(c.app.db)
			if rollback {
				if err := migrator.Rollback(ctx); err != nil {
					return err
				}
			} else if err := migrator.Migrate(ctx); err != nil {
				return err
			}
			migrations, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			for _, m := range migrations {
				state := "pending"
				if m.Applied() {
					state = "applied " + m.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(c.out, "%03d %-28s %s\n", m.Version, m.Name, state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last applied migration")
	return cmd
}

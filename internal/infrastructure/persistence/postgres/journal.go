package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roboxon/student-app/internal/domain/report"
)

// ErrInvalidEntry is returned for journal entries missing a student or kind.
var ErrInvalidEntry = errors.New("postgres: invalid journal entry")

// Journal implements report.Journal on the sync_journal table.
type Journal struct {
	q            Querier
	newID        func() uuid.UUID
	queryTimeout time.Duration
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithQueryTimeout bounds every journal statement. Zero leaves ctx as is.
func WithQueryTimeout(d time.Duration) JournalOption {
	return func(j *Journal) { j.queryTimeout = d }
}

// NewJournal creates a Journal. q is usually a *Connection.
func NewJournal(q Querier, opts ...JournalOption) *Journal {
	j := &Journal{q: q, newID: uuid.New}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Journal) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if j.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, j.queryTimeout)
}

// Record implements report.Journal.
func (j *Journal) Record(ctx context.Context, entry report.JournalEntry) error {
	if entry.StudentID == "" || entry.Kind == "" {
		return ErrInvalidEntry
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := j.bound(ctx)
	defer cancel()

	query := `
		INSERT INTO sync_journal (id, student_id, week_start, kind, attempts, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := j.q.Exec(ctx, query,
		j.newID(),
		entry.StudentID,
		entry.WeekStart.UTC(),
		string(entry.Kind),
		entry.Attempts,
		entry.Detail,
		at.UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// Recent returns a student's latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, studentID string, limit int) ([]report.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := j.bound(ctx)
	defer cancel()

	query := `
		SELECT student_id, week_start, kind, attempts, detail, recorded_at
		FROM sync_journal
		WHERE student_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	rows, err := j.q.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []report.JournalEntry
	for rows.Next() {
		var e report.JournalEntry
		var kind string
		if err := rows.Scan(&e.StudentID, &e.WeekStart, &kind, &e.Attempts, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Kind = report.JournalKind(kind)
		e.WeekStart = e.WeekStart.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastSubmitted returns when a week was last acknowledged by the portal.
func (j *Journal) LastSubmitted(ctx context.Context, key report.Key) (time.Time, bool, error) {
	ctx, cancel := j.bound(ctx)
	defer cancel()

	var at time.Time
	err := j.q.QueryRow(ctx,
		`SELECT recorded_at FROM last_submissions WHERE student_id = $1 AND week_start = $2`,
		key.StudentID, key.WeekStart,
	).Scan(&at)
	if err != nil {
		if IsNoRows(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to query last submission: %w", err)
	}
	return at, true, nil
}

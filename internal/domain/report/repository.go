package report

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL STORE
// ══════════════════════════════════════════════════════════════════════════════

// LoadOutcome tells a found draft apart from a miss and from a damaged file.
type LoadOutcome int

const (
	LoadOK LoadOutcome = iota
	LoadNotFound
	LoadCorrupt
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadOK:
		return "ok"
	case LoadNotFound:
		return "not_found"
	case LoadCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// LoadResult is the outcome of reading a local draft. Doc is set only for
// LoadOK; Err carries the cause for LoadCorrupt.
type LoadResult struct {
	Doc     *WeeklyReportRecord
	Outcome LoadOutcome
	Err     error
}

// Found reports whether a usable draft was read.
func (r LoadResult) Found() bool {
	return r.Outcome == LoadOK && r.Doc != nil
}

// LocalStore keeps one draft per report key on durable local storage.
// Save and Remove announce the change to subscribers of the store.
type LocalStore interface {
	Save(ctx context.Context, doc *WeeklyReportRecord) error
	Load(ctx context.Context, key Key) LoadResult
	Remove(ctx context.Context, key Key) error
	Exists(ctx context.Context, key Key) bool
}

// ══════════════════════════════════════════════════════════════════════════════
// REMOTE GATEWAY
// ══════════════════════════════════════════════════════════════════════════════

// RemoteGateway submits and fetches reports on the portal. Implementations
// authenticate every request themselves.
type RemoteGateway interface {
	// Submit sends the full document with its week start as metadata.
	Submit(ctx context.Context, doc *WeeklyReportRecord) error

	// Fetch returns the portal's copy of an ISO week, or an error matching
	// shared.ErrNotFound when the portal has none.
	Fetch(ctx context.Context, studentID string, year, week int) (*WeeklyReportRecord, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC JOURNAL
// ══════════════════════════════════════════════════════════════════════════════

// JournalKind names a recorded sync outcome.
type JournalKind string

const (
	JournalSubmitted    JournalKind = "submitted"
	JournalSubmitFailed JournalKind = "submit_failed"
	JournalDraftKept    JournalKind = "draft_kept"
	JournalDraftCorrupt JournalKind = "draft_corrupt"
	JournalFetchFailed  JournalKind = "fetch_failed"
)

// JournalEntry is one recorded sync outcome for a week.
type JournalEntry struct {
	StudentID string
	WeekStart time.Time
	Kind      JournalKind
	Attempts  int
	Detail    string
	At        time.Time
}

// Journal records sync outcomes for later inspection.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// NopJournal discards every entry.
type NopJournal struct{}

// Record implements Journal.
func (NopJournal) Record(context.Context, JournalEntry) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// STATUS CACHE
// ══════════════════════════════════════════════════════════════════════════════

// StatusEntry is a memoized classification of one week.
type StatusEntry struct {
	Status   Status        `json:"status"`
	Reported time.Duration `json:"reported"`
	Required time.Duration `json:"required"`
}

// StatusCache memoizes StatusEntry values by report key. Entries have no
// expiry; they live until deleted.
type StatusCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key Key) (entry StatusEntry, ok bool, err error)
	Set(ctx context.Context, key Key, entry StatusEntry) error
	Delete(ctx context.Context, key Key) error
}

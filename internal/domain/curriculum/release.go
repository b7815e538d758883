// Package curriculum defines the release document: the curriculum a
// student is assigned, issued once and never changed afterwards.
package curriculum

import (
	"context"
	"net/http"
	"time"
)

// Release is an issued curriculum identified by a numeric id.
type Release struct {
	ID       int64      `json:"id"`
	Version  string     `json:"version,omitempty"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
	Program  Program    `json:"program"`
}

// Program is the root of the curriculum tree.
type Program struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Subjects    []Subject `json:"subjects"`
}

// Subject groups topics of one discipline.
type Subject struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Code   string  `json:"code,omitempty"`
	Topics []Topic `json:"topics"`
}

// Topic holds the lessons and resources of one unit of a subject.
type Topic struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Order     int        `json:"order"`
	Lessons   []Lesson   `json:"lessons,omitempty"`
	Resources []Resource `json:"resources,omitempty"`
}

// Lesson is a single teachable unit. DurationMinutes is nil when the
// release does not plan a duration.
type Lesson struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Order           int    `json:"order"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
}

// Resource is reference material attached to a topic.
type Resource struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Kind  string `json:"kind,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Subject returns the subject with the given id.
func (r *Release) Subject(id int64) (*Subject, bool) {
	for i := range r.Program.Subjects {
		if r.Program.Subjects[i].ID == id {
			return &r.Program.Subjects[i], true
		}
	}
	return nil, false
}

// Topic returns the topic with the given id inside a subject.
func (s *Subject) Topic(id int64) (*Topic, bool) {
	for i := range s.Topics {
		if s.Topics[i].ID == id {
			return &s.Topics[i], true
		}
	}
	return nil, false
}

// LessonCount counts lessons across the whole program.
func (r *Release) LessonCount() int {
	n := 0
	for _, s := range r.Program.Subjects {
		for _, t := range s.Topics {
			n += len(t.Lessons)
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// Envelope is the portal's release response. It is cached as received.
type Envelope struct {
	StatusCode int      `json:"status_code"`
	Message    string   `json:"message,omitempty"`
	Data       *Release `json:"data,omitempty"`
}

// OK reports whether the envelope carries a release and a success status.
func (e *Envelope) OK() bool {
	return e != nil && e.StatusCode >= http.StatusOK && e.StatusCode < http.StatusMultipleChoices && e.Data != nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// Gateway fetches releases from the portal. Implementations authenticate
// the request and return the envelope even for non-success status codes.
type Gateway interface {
	FetchRelease(ctx context.Context, releaseID int64) (*Envelope, error)
}

// Store keeps one envelope per release id on local storage.
type Store interface {
	// Load returns shared.ErrReleaseNotFound on a miss and an error matching
	// shared.ErrCorruptCache for an unreadable file.
	Load(ctx context.Context, releaseID int64) (*Envelope, error)
	// Save overwrites any envelope previously cached for the same id.
	Save(ctx context.Context, releaseID int64, env *Envelope) error
}

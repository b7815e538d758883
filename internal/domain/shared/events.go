package shared

import "time"

// EventType represents the type of domain event.
type EventType string

const (
	// EventReportSaved fires after a local draft was written.
	EventReportSaved EventType = "report.saved"
	// EventReportRemoved fires after a local draft was removed, whether or
	// not a file existed.
	EventReportRemoved EventType = "report.removed"
	// EventReportSubmitted fires after the portal acknowledged a submission.
	EventReportSubmitted EventType = "report.submitted"
	// EventReleaseRefreshed fires after a release was fetched and cached.
	EventReleaseRefreshed EventType = "curriculum.release_refreshed"
)

// Event is the base interface for all domain events.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID returns the identity key of the aggregate that changed.
	AggregateID() string
	Payload() map[string]interface{}
}

// EventHandler handles one event.
type EventHandler func(Event) error

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber registers handlers.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event.
func (e BaseEvent) EventType() EventType { return e.Type }

// OccurredAt implements Event.
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// AggregateID implements Event.
func (e BaseEvent) AggregateID() string { return e.AggregateId }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
	}
}

// ReportChangedEvent announces a mutation of a week's local draft. The
// aggregate id is the report key ("<student>/<yyyy-mm-dd>").
type ReportChangedEvent struct {
	BaseEvent
	StudentID string    `json:"student_id"`
	WeekStart time.Time `json:"week_start"`
}

// Payload implements Event.
func (e ReportChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"week_start": e.WeekStart.Format("2006-01-02"),
	}
}

// NewReportChangedEvent creates a saved/removed/submitted event for key.
func NewReportChangedEvent(eventType EventType, key, studentID string, weekStart time.Time) ReportChangedEvent {
	return ReportChangedEvent{
		BaseEvent: NewBaseEvent(eventType, key),
		StudentID: studentID,
		WeekStart: weekStart,
	}
}

// ReleaseRefreshedEvent announces a freshly cached release.
type ReleaseRefreshedEvent struct {
	BaseEvent
	ReleaseID int64 `json:"release_id"`
}

// Payload implements Event.
func (e ReleaseRefreshedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"release_id": e.ReleaseID}
}

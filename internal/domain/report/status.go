package report

import (
	"fmt"
	"time"
)

// Status classifies a week's reporting coverage against its scheduled hours.
type Status int

const (
	StatusNone Status = iota
	StatusPartial
	StatusComplete
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusPartial:
		return "partial"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*s = StatusNone
	case "partial":
		*s = StatusPartial
	case "complete":
		*s = StatusComplete
	default:
		return fmt.Errorf("report: unknown status %q", text)
	}
	return nil
}

// Classify returns None when nothing was reported, Complete when reported
// covers required, and Partial otherwise.
func Classify(reported, required time.Duration) Status {
	switch {
	case reported <= 0:
		return StatusNone
	case reported >= required:
		return StatusComplete
	default:
		return StatusPartial
	}
}

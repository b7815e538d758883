// Package shared contains the error taxonomy and change events used across
// the reporting domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be checked with errors.Is().
var (
	// ErrValidation: the requested week lies outside the enrollment window
	// or an input violates a domain invariant.
	ErrValidation = errors.New("validation error")

	// ErrNotFound: no local or remote record exists. Callers treat it as a
	// miss, not as a failure.
	ErrNotFound = errors.New("not found")

	// ErrTransport: a remote call failed.
	ErrTransport = errors.New("transport error")

	// ErrCorruptCache: a local file is unreadable or malformed. It degrades
	// to ErrNotFound at the store boundary and is never surfaced to users.
	ErrCorruptCache = errors.New("corrupt cache")

	// ErrAuth: no access token is available. Fatal for the operation.
	ErrAuth = errors.New("authentication unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "report", "curriculum", "schedule"
	Op      string // operation that failed, e.g. "Save", "Submit"
	Kind    error  // base kind for errors.Is() checking
	Message string // human-readable message
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches either the kind or the underlying error.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// RemoteError carries the status code and service message of a failed
// portal call so callers can choose between retry and abort.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s: remote status %d", e.Operation, e.StatusCode)
	if e.StatusCode == 0 {
		msg = e.Operation + ": remote call failed"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is makes every RemoteError an ErrTransport; 404s also match ErrNotFound.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrAuth:
		return e.StatusCode == 401 || e.StatusCode == 403
	}
	return false
}

// Temporary reports whether repeating the call may succeed: network
// failures, timeouts, rate limiting and server errors.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}

// Reporting errors.
var (
	ErrWeekOutsideWindow = NewDomainError("schedule", "Validate", ErrValidation, "week is outside the enrollment window")
	ErrWeekNotMonday     = NewDomainError("report", "Validate", ErrValidation, "week start must be a Monday")
	ErrMalformedWeek     = NewDomainError("report", "Validate", ErrValidation, "weekly report must contain exactly seven consecutive days")
	ErrSlotNotFound      = NewDomainError("report", "SetSlot", ErrNotFound, "no slot at that time")
	ErrReportNotFound    = NewDomainError("report", "Load", ErrNotFound, "report not found")
	ErrReleaseNotFound   = NewDomainError("curriculum", "Load", ErrNotFound, "release not cached")
	ErrNoRelease         = NewDomainError("curriculum", "Get", ErrValidation, "student has no release assigned")
	ErrTokenUnavailable  = NewDomainError("auth", "AccessToken", ErrAuth, "access token unavailable")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsTransport checks if the error came from a remote call.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsAuth checks if the error is an authentication error.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsRetryable reports whether a failed remote call is worth repeating.
// Auth failures and client errors are final.
func IsRetryable(err error) bool {
	if err == nil || IsAuth(err) {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Temporary()
	}
	return IsTransport(err)
}

package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save week: %w", WrapError("report", "Save", ErrCorruptCache, "write failed", cause))

	assert.ErrorIs(t, err, ErrCorruptCache)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "save week: report.Save: write failed: disk full", err.Error())
}

func TestSentinels(t *testing.T) {
	assert.True(t, IsValidation(ErrWeekOutsideWindow))
	assert.True(t, IsNotFound(ErrReportNotFound))
	assert.True(t, IsAuth(ErrTokenUnavailable))
	assert.False(t, IsTransport(ErrTokenUnavailable))
}

func TestRemoteError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       *RemoteError
		notFound  bool
		auth      bool
		retryable bool
	}{
		{"network", &RemoteError{Operation: "submit", Err: errors.New("connection reset")}, false, false, true},
		{"server", &RemoteError{Operation: "submit", StatusCode: 503}, false, false, true},
		{"rate limited", &RemoteError{Operation: "submit", StatusCode: 429}, false, false, true},
		{"missing", &RemoteError{Operation: "fetch", StatusCode: 404}, true, false, false},
		{"unauthorized", &RemoteError{Operation: "fetch", StatusCode: 401}, false, true, false},
		{"bad request", &RemoteError{Operation: "submit", StatusCode: 400, Message: "invalid week"}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("portal: %w", tt.err)
			assert.True(t, IsTransport(wrapped))
			assert.Equal(t, tt.notFound, IsNotFound(wrapped))
			assert.Equal(t, tt.auth, IsAuth(wrapped))
			assert.Equal(t, tt.retryable, IsRetryable(wrapped))
		})
	}
}

func TestRemoteError_Message(t *testing.T) {
	err := &RemoteError{Operation: "fetch_release", StatusCode: 500, Message: "release service down"}
	assert.Equal(t, "fetch_release: remote status 500: release service down", err.Error())
}

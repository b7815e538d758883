package portal

import (
	"encoding/json"
	"strings"
)

// APIResponse is the envelope every portal endpoint answers with.
type APIResponse[T any] struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message,omitempty"`
	Data       *T     `json:"data,omitempty"`
}

// submitAck is the body of a successful report submission.
type submitAck struct {
	ReportID string `json:"report_id,omitempty"`
	Accepted bool   `json:"accepted"`
}

// errorMessage extracts a human-readable message from an error body.
// Some deployments answer with {"error": "..."} instead of the envelope.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

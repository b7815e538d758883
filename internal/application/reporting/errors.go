package reporting

import (
	"fmt"

	"github.com/roboxon/student-app/internal/domain/report"
)

// SaveError reports a failed local save.
type SaveError struct {
	Key report.Key
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save report %s: %v", e.Key, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// SubmitError reports a failed remote submission. The local draft is
// always left in place when it is returned.
type SubmitError struct {
	Key      report.Key
	Attempts int
	Err      error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit report %s after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

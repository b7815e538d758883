// Package student holds the student profile and the token contract that
// reporting consumes from the login layer.
package student

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/roboxon/student-app/internal/domain/schedule"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/pkg/timeutil"
)

// Profile is the read-only student data reporting depends on.
type Profile struct {
	ID        string            `json:"id" yaml:"id" validate:"required"`
	Schedule  schedule.Schedule `json:"schedule" yaml:"schedule" validate:"dive"`
	JoinDate  string            `json:"join_date,omitempty" yaml:"join_date"`
	ExitDate  string            `json:"exit_date,omitempty" yaml:"exit_date"`
	ReleaseID int64             `json:"release_id,omitempty" yaml:"release_id" validate:"gte=0"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func profileValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks required fields and working-day ranges. Enrollment
// dates are not checked: unparseable dates degrade the window instead.
func (p Profile) Validate() error {
	err := profileValidator().Struct(p)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return shared.WrapError("student", "Validate", shared.ErrValidation, "invalid profile", err)
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Namespace(), f.Tag()))
	}
	return shared.NewDomainError("student", "Validate", shared.ErrValidation, strings.Join(msgs, "; "))
}

// Window returns the enrollment window of the profile.
func (p Profile) Window(clock timeutil.Clock) schedule.Window {
	return schedule.NewWindow(p.JoinDate, p.ExitDate, clock)
}

// HasRelease reports whether a curriculum release is assigned.
func (p Profile) HasRelease() bool {
	return p.ReleaseID > 0
}

// TokenProvider hands out access tokens for portal requests.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider with a fixed token. An empty token fails
// with shared.ErrTokenUnavailable.
type StaticToken string

// AccessToken implements TokenProvider.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", shared.ErrTokenUnavailable
	}
	return string(t), nil
}

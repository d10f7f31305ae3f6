package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// JobID is the opaque unique identifier of a job, generated at creation time
// and used as the document key in the job store.
type JobID string

func NewJobID() JobID {
	return JobID(uuid.New().String())
}

func (s JobID) String() string {
	return string(s)
}

func (s JobID) Valid() bool {
	return s != ""
}

// StepID is the opaque unique identifier of a step within a job. Transitions
// reference steps by ID; templates reference them by name.
type StepID string

func NewStepID() StepID {
	return StepID(uuid.New().String())
}

func (s StepID) String() string {
	return string(s)
}

func (s StepID) Valid() bool {
	return s != ""
}

// UserID namespaces storage paths and asset uploads. It is supplied by the
// caller and may be empty for jobs that do not belong to a user.
type UserID string

func (s UserID) String() string {
	return string(s)
}

func (s UserID) Valid() bool {
	return s != ""
}

// ValidatePathSafe returns an error unless the user id can be used verbatim
// as a single path element under the storage root.
func (s UserID) ValidatePathSafe() error {
	if strings.ContainsAny(string(s), `/\`) || s == "." || s == ".." {
		return fmt.Errorf("error user id %q must be usable as a single path element", s)
	}
	return nil
}

const serviceNameMaxLength = 100

var serviceNameRegex = regexp.MustCompile("^[a-z][a-z0-9_]*$")

// ServiceName identifies the worker pool that executes a step. The name is
// embedded in the request queue channel name, so the character set is
// restricted to keep channel names unambiguous.
type ServiceName string

func (s ServiceName) String() string {
	return string(s)
}

func (s ServiceName) Valid() bool {
	return s.Validate() == nil
}

func (s ServiceName) Validate() error {
	if s == "" {
		return errors.New("error service must be set")
	}
	if len(s) > serviceNameMaxLength {
		return fmt.Errorf("error service must not exceed %d characters", serviceNameMaxLength)
	}
	if !serviceNameRegex.MatchString(s.String()) {
		return fmt.Errorf("error service must start with a letter and contain only lowercase alphanumeric or underscore characters: '%s'", s)
	}
	return nil
}

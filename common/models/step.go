package models

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const stepNameMaxLength = 100

var stepNameRegex = regexp.MustCompile("^[a-zA-Z0-9_-]{1,100}$")

// Step is a single node in a job's transition graph: one external program
// invocation handled by one worker service.
type Step struct {
	ID StepID `json:"step_id" bson:"step_id"`
	// Name is a human label for the step, unique within the job. Templates
	// reference steps by name ({{steps.<name>.outputs.<key>}}).
	Name string `json:"name" bson:"name"`
	// Order is the dense 0-based submission index of the step within the job.
	Order int `json:"order" bson:"order"`
	// Service identifies the worker pool that executes this step.
	Service ServiceName `json:"service" bson:"service"`
	// CommandSpec describes the subprocess the worker will run.
	CommandSpec *CommandSpec `json:"command_spec" bson:"command_spec"`
	// Inputs maps logical input names to paths, URIs or templates. Inbound
	// transitions merge mapped upstream outputs over these at dispatch time.
	Inputs map[string]string `json:"inputs,omitempty" bson:"inputs,omitempty"`
	// Outputs maps logical output names to paths or templates. After the step
	// completes these hold only resolved storage-relative paths.
	Outputs map[string]string `json:"outputs,omitempty" bson:"outputs,omitempty"`
	// Status reflects where the step is in its lifecycle.
	Status     Status `json:"status" bson:"status"`
	StartedAt  *Time  `json:"started_at,omitempty" bson:"started_at,omitempty"`
	FinishedAt *Time  `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
	// ErrorMessage is set iff the step failed.
	ErrorMessage string `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

// CompositeName returns the canonical directory name for the step's outputs,
// of the form "{order:03d}_{service}_{program}_{hash8}". It is a pure
// function of (order, service, program, flags), so it is derived on demand
// and never stored.
func (m *Step) CompositeName() string {
	return fmt.Sprintf("%03d_%s_%s_%s", m.Order, m.Service, m.CommandSpec.Program, m.CommandSpec.ParamHash())
}

func (m *Step) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error step id must be set"))
	}
	if err := ValidateStepName(m.Name); err != nil {
		result = multierror.Append(result, err)
	}
	if m.Order < 0 {
		result = multierror.Append(result, errors.New("error order must not be negative"))
	}
	if err := m.Service.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.CommandSpec == nil {
		result = multierror.Append(result, errors.New("error command spec must be set"))
	} else if m.CommandSpec.Program == "" {
		result = multierror.Append(result, errors.New("error command spec program must be set"))
	}
	if !m.Status.Valid() {
		result = multierror.Append(result, errors.New("error status is invalid"))
	}
	if m.Status == StatusFailed && m.ErrorMessage == "" {
		result = multierror.Append(result, errors.New("error error message must be set when step has failed"))
	}
	return result.ErrorOrNil()
}

func ValidateStepName(name string) error {
	if name == "" {
		return errors.New("error step name must be set")
	}
	if len(name) > stepNameMaxLength {
		return fmt.Errorf("error step name must not exceed %d characters", stepNameMaxLength)
	}
	if !stepNameRegex.MatchString(name) {
		return fmt.Errorf("error step name must only contain alphanumeric, dash or underscore characters: '%s'", name)
	}
	return nil
}

package models

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// NewJobPayload is the wire shape of a job submission. Steps are identified
// by name; the orchestrator generates IDs and rewrites transitions to
// reference them when it builds the Job.
type NewJobPayload struct {
	UserID          UserID                  `json:"user_id,omitempty"`
	Steps           []*NewStepPayload       `json:"steps"`
	StepTransitions []*NewTransitionPayload `json:"step_transitions,omitempty"`
}

type NewStepPayload struct {
	Name        string            `json:"name"`
	Service     ServiceName       `json:"service"`
	CommandSpec *CommandSpec      `json:"command_spec"`
	Inputs      map[string]string `json:"inputs,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
}

type NewTransitionPayload struct {
	FromStepName         string            `json:"from_step_name"`
	ToStepName           string            `json:"to_step_name"`
	OutputToInputMapping map[string]string `json:"output_to_input_mapping,omitempty"`
}

// Validate the payload, accumulating every problem rather than stopping at
// the first so a caller sees the full list.
func (m *NewJobPayload) Validate() error {
	var result *multierror.Error
	if m.UserID != "" {
		if err := m.UserID.ValidatePathSafe(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if len(m.Steps) == 0 {
		result = multierror.Append(result, errors.New("error steps must not be empty"))
	}
	stepsByName := make(map[string]*NewStepPayload, len(m.Steps))
	for i, step := range m.Steps {
		if err := step.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error validating step %q (index %d)", step.Name, i))
		}
		if _, ok := stepsByName[step.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("error duplicate step name %q; step names must be unique", step.Name))
		}
		stepsByName[step.Name] = step
	}
	for i, transition := range m.StepTransitions {
		if err := transition.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error validating transition (index %d)", i))
			continue
		}
		if _, ok := stepsByName[transition.FromStepName]; !ok {
			result = multierror.Append(result, fmt.Errorf("error transition references undeclared step %q", transition.FromStepName))
		}
		if _, ok := stepsByName[transition.ToStepName]; !ok {
			result = multierror.Append(result, fmt.Errorf("error transition references undeclared step %q", transition.ToStepName))
		}
	}
	if err := m.validateAcyclic(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// validateAcyclic runs Kahn's algorithm over the submitted transition graph,
// keyed by step name, and fails if any cycle exists.
func (m *NewJobPayload) validateAcyclic() error {
	inDegree := make(map[string]int, len(m.Steps))
	outEdges := make(map[string][]string, len(m.Steps))
	for _, step := range m.Steps {
		inDegree[step.Name] = 0
	}
	for _, transition := range m.StepTransitions {
		if _, ok := inDegree[transition.FromStepName]; !ok {
			continue
		}
		if _, ok := inDegree[transition.ToStepName]; !ok {
			continue
		}
		outEdges[transition.FromStepName] = append(outEdges[transition.FromStepName], transition.ToStepName)
		inDegree[transition.ToStepName]++
	}
	var frontier []string
	for name, degree := range inDegree {
		if degree == 0 {
			frontier = append(frontier, name)
		}
	}
	visited := 0
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		visited++
		for _, next := range outEdges[name] {
			inDegree[next]--
			if inDegree[next] == 0 {
				frontier = append(frontier, next)
			}
		}
	}
	if visited != len(m.Steps) {
		return errors.New("error step transitions must not form a cycle")
	}
	return nil
}

func (m *NewStepPayload) Validate() error {
	var result *multierror.Error
	if err := ValidateStepName(m.Name); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.Service.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.CommandSpec == nil {
		result = multierror.Append(result, errors.New("error command spec must be set"))
	} else if m.CommandSpec.Program == "" {
		result = multierror.Append(result, errors.New("error command spec program must be set"))
	}
	return result.ErrorOrNil()
}

func (m *NewTransitionPayload) Validate() error {
	var result *multierror.Error
	if m.FromStepName == "" {
		result = multierror.Append(result, errors.New("error from step name must be set"))
	}
	if m.ToStepName == "" {
		result = multierror.Append(result, errors.New("error to step name must be set"))
	}
	if m.FromStepName != "" && m.FromStepName == m.ToStepName {
		result = multierror.Append(result, errors.New("error transition must not reference the same step twice"))
	}
	return result.ErrorOrNil()
}

// RetryStatus is the literal status string returned in a RetryReceipt.
const RetryStatus = "retrying"

// RetryReceipt describes the outcome of a retry request: which step the job
// will resume from.
type RetryReceipt struct {
	Status     string `json:"status"`
	JobID      JobID  `json:"job_id"`
	ResumeStep string `json:"resume_step"`
	StepIndex  int    `json:"step_index"`
}

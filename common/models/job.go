package models

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Job is the unit of work: a directed graph of steps executed by worker
// services, driven to a terminal status by the orchestrator. A job is created
// once, mutated only by the orchestrator, and never deleted by the core.
type Job struct {
	ID JobID `json:"job_id" bson:"_id"`
	// UserID namespaces the job's storage paths; empty for anonymous jobs.
	UserID UserID `json:"user_id,omitempty" bson:"user_id,omitempty"`
	// Status reflects where the job is in its lifecycle.
	Status Status `json:"status" bson:"status"`
	// Steps is the ordered set of nodes, indexed by step_id and by dense
	// positional order.
	Steps []*Step `json:"steps" bson:"steps"`
	// StepTransitions is the set of edges between steps.
	StepTransitions []*Transition `json:"step_transitions,omitempty" bson:"step_transitions,omitempty"`
	// Fingerprint is a stable hash of the submitted definition (steps and
	// transitions), letting callers detect resubmissions of the same pipeline.
	Fingerprint string `json:"fingerprint,omitempty" bson:"fingerprint,omitempty"`
	CreatedAt   Time   `json:"created_at" bson:"created_at"`
	UpdatedAt   Time   `json:"updated_at" bson:"updated_at"`
}

// StepByID returns the step with the given ID, or nil.
func (m *Job) StepByID(id StepID) *Step {
	for _, step := range m.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// StepByName returns the step with the given name, or nil.
func (m *Job) StepByName(name string) *Step {
	for _, step := range m.Steps {
		if step.Name == name {
			return step
		}
	}
	return nil
}

// FirstIncompleteStep returns the step with the lowest order whose status is
// not complete, or nil if every step is complete. This is the resume point
// for a retry.
func (m *Job) FirstIncompleteStep() *Step {
	steps := make([]*Step, len(m.Steps))
	copy(steps, m.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	for _, step := range steps {
		if step.Status != StatusComplete {
			return step
		}
	}
	return nil
}

// AllStepsComplete returns true if every step in the job has completed.
func (m *Job) AllStepsComplete() bool {
	for _, step := range m.Steps {
		if step.Status != StatusComplete {
			return false
		}
	}
	return true
}

// InboundTransitions returns the transitions targeting the given step, in
// submission order.
func (m *Job) InboundTransitions(id StepID) []*Transition {
	var inbound []*Transition
	for _, transition := range m.StepTransitions {
		if transition.ToStepID == id {
			inbound = append(inbound, transition)
		}
	}
	return inbound
}

// InitialSteps returns the steps that are not the target of any transition.
// These are dispatched immediately when the job is created.
func (m *Job) InitialSteps() []*Step {
	var initial []*Step
	for _, step := range m.Steps {
		if len(m.InboundTransitions(step.ID)) == 0 {
			initial = append(initial, step)
		}
	}
	return initial
}

// Validate the job including the step relationships and the transition graph.
func (m *Job) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error created at must be set"))
	}
	if m.UpdatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error updated at must be set"))
	}
	if !m.Status.Valid() {
		result = multierror.Append(result, errors.New("error status is invalid"))
	}
	if len(m.Steps) == 0 {
		result = multierror.Append(result, errors.New("error steps must not be empty"))
	}
	stepsByID := make(map[StepID]*Step, len(m.Steps))
	stepsByName := make(map[string]*Step, len(m.Steps))
	ordersSeen := make(map[int]bool, len(m.Steps))
	for i, step := range m.Steps {
		if err := step.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error validating step %q (index %d)", step.Name, i))
		}
		if _, ok := stepsByID[step.ID]; ok {
			result = multierror.Append(result, fmt.Errorf("error duplicate step id %q; step ids must be unique within a job", step.ID))
		}
		stepsByID[step.ID] = step
		if _, ok := stepsByName[step.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("error duplicate step name %q; step names must be unique within a job", step.Name))
		}
		stepsByName[step.Name] = step
		if step.Order < 0 || step.Order >= len(m.Steps) || ordersSeen[step.Order] {
			result = multierror.Append(result, fmt.Errorf("error step orders must be dense 0..%d; step %q has order %d", len(m.Steps)-1, step.Name, step.Order))
		}
		ordersSeen[step.Order] = true
	}
	for i, transition := range m.StepTransitions {
		if err := transition.Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "error validating transition (index %d)", i))
			continue
		}
		if _, ok := stepsByID[transition.FromStepID]; !ok {
			result = multierror.Append(result, fmt.Errorf("error transition references unknown from step %q", transition.FromStepID))
		}
		if _, ok := stepsByID[transition.ToStepID]; !ok {
			result = multierror.Append(result, fmt.Errorf("error transition references unknown to step %q", transition.ToStepID))
		}
	}
	if err := validateAcyclic(m.Steps, m.StepTransitions); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// validateAcyclic runs Kahn's algorithm over the transition graph and fails
// if any edges survive, meaning at least one cycle exists.
func validateAcyclic(steps []*Step, transitions []*Transition) error {
	inDegree := make(map[StepID]int, len(steps))
	outEdges := make(map[StepID][]StepID, len(steps))
	for _, step := range steps {
		inDegree[step.ID] = 0
	}
	for _, transition := range transitions {
		if _, ok := inDegree[transition.FromStepID]; !ok {
			continue
		}
		if _, ok := inDegree[transition.ToStepID]; !ok {
			continue
		}
		outEdges[transition.FromStepID] = append(outEdges[transition.FromStepID], transition.ToStepID)
		inDegree[transition.ToStepID]++
	}
	var frontier []StepID
	for id, degree := range inDegree {
		if degree == 0 {
			frontier = append(frontier, id)
		}
	}
	visited := 0
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		visited++
		for _, next := range outEdges[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				frontier = append(frontier, next)
			}
		}
	}
	if visited != len(steps) {
		return errors.New("error step transitions must not form a cycle")
	}
	return nil
}

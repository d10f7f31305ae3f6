package models

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	// EventTypeStepProcessing is emitted by a worker when it accepts a step.
	EventTypeStepProcessing StepEventType = "JOB_STEP_PROCESSING"
	// EventTypeStepComplete is emitted by a worker when a step succeeds.
	EventTypeStepComplete StepEventType = "JOB_STEP_COMPLETE"
	// EventTypeStepFailed is emitted by a worker when a step fails.
	EventTypeStepFailed StepEventType = "JOB_STEP_FAILED"
)

// StepEventType tags a status envelope on the wire.
type StepEventType string

func (s StepEventType) String() string {
	return string(s)
}

// StepEventTypeForStatus returns the wire event type corresponding to a step
// status.
func StepEventTypeForStatus(status Status) StepEventType {
	switch status {
	case StatusComplete:
		return EventTypeStepComplete
	case StatusFailed:
		return EventTypeStepFailed
	default:
		return EventTypeStepProcessing
	}
}

// StepExecuteEvent is the envelope the orchestrator pushes onto a service's
// request queue. Everything a worker needs to run the step is inlined: the
// resolved command spec and the resolved input and output path maps.
type StepExecuteEvent struct {
	JobID        JobID        `json:"job_id"`
	StepID       StepID       `json:"step_id"`
	StepName     string       `json:"step_name"`
	Microservice ServiceName  `json:"microservice"`
	CommandSpec  *CommandSpec `json:"command_spec"`
	// Inputs maps logical input names to storage-relative (or absolute) paths.
	Inputs map[string]string `json:"inputs,omitempty"`
	// Outputs maps logical output names to storage-relative paths the worker
	// must produce.
	Outputs map[string]string `json:"outputs,omitempty"`
	// CompositeName is the step's canonical output directory name.
	CompositeName string `json:"composite_name"`
}

func (m *StepExecuteEvent) Validate() error {
	var result *multierror.Error
	if !m.JobID.Valid() {
		result = multierror.Append(result, errors.New("error job id must be set"))
	}
	if !m.StepID.Valid() {
		result = multierror.Append(result, errors.New("error step id must be set"))
	}
	if err := m.Microservice.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.CommandSpec == nil {
		result = multierror.Append(result, errors.New("error command spec must be set"))
	}
	return result.ErrorOrNil()
}

// StepStatusEvent is the envelope workers push onto the status channel to
// report progress on a step. Processing events are informational heartbeats;
// complete and failed events drive the orchestrator's dispatch decisions.
type StepStatusEvent struct {
	EventType StepEventType `json:"event_type"`
	JobID     JobID         `json:"job_id"`
	StepID    StepID        `json:"step_id"`
	StepName  string        `json:"step_name"`
	Status    Status        `json:"status"`
	// Outputs is set only on complete events and holds resolved
	// storage-relative paths. Absent on processing and failed events so prior
	// recorded state is preserved.
	Outputs map[string]string `json:"outputs,omitempty"`
	// ErrorMessage is set only on failed events.
	ErrorMessage string `json:"error_message,omitempty"`
	// Metrics carries optional worker-side measurements such as subprocess
	// duration and per-output checksums.
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// NewStepStatusEvent builds a status envelope for the given step and status,
// stamped with the supplied time.
func NewStepStatusEvent(jobID JobID, stepID StepID, stepName string, status Status, now time.Time) *StepStatusEvent {
	return &StepStatusEvent{
		EventType: StepEventTypeForStatus(status),
		JobID:     jobID,
		StepID:    stepID,
		StepName:  stepName,
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

func (m *StepStatusEvent) Validate() error {
	var result *multierror.Error
	if !m.JobID.Valid() {
		result = multierror.Append(result, errors.New("error job id must be set"))
	}
	if !m.StepID.Valid() {
		result = multierror.Append(result, errors.New("error step id must be set"))
	}
	if !m.Status.Valid() {
		result = multierror.Append(result, errors.Errorf("error status %q is invalid", m.Status))
	}
	return result.ErrorOrNil()
}

const (
	// JobEventTypeSubmit announces a newly created job.
	JobEventTypeSubmit JobEventType = "JOB_SUBMIT"
	// JobEventTypeStatusUpdate announces a step status change.
	JobEventTypeStatusUpdate JobEventType = "STATUS_UPDATE"
	// JobEventTypeFinalStatus announces the job reaching a terminal status.
	JobEventTypeFinalStatus JobEventType = "FINAL_STATUS"
)

// JobEventType tags a job event published to stream subscribers.
type JobEventType string

// JobEvent is the payload fanned out to clients subscribed to a job's event
// stream. Events are informational only and are not persisted.
type JobEvent struct {
	JobID    JobID        `json:"job_id"`
	Type     JobEventType `json:"type"`
	Status   Status       `json:"status"`
	StepName string       `json:"step_name,omitempty"`
	// Payload carries event-type specific details, such as the failing step's
	// error message on a final failed status.
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// NewJobEvent builds a job event stamped with the supplied time.
func NewJobEvent(jobID JobID, eventType JobEventType, status Status, now time.Time) *JobEvent {
	return &JobEvent{
		JobID:     jobID,
		Type:      eventType,
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

package documents

import (
	"net/http"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/api/rest/routes"
)

// Job contains information and links relating to a job resource, including
// every step and transition in its pipeline graph.
type Job struct {
	baseResourceDocument

	ID        models.JobID  `json:"job_id"`
	UserID    models.UserID `json:"user_id,omitempty"`
	CreatedAt models.Time   `json:"created_at"`
	UpdatedAt models.Time   `json:"updated_at"`

	// Status reflects where the job is in its lifecycle.
	Status models.Status `json:"status"`
	// Steps that make up the job, in submission order.
	Steps []*Step `json:"steps"`
	// StepTransitions are the edges wiring step outputs to step inputs.
	StepTransitions []*Transition `json:"step_transitions,omitempty"`
	// Fingerprint is a stable hash of the submitted pipeline definition.
	Fingerprint string `json:"fingerprint,omitempty"`

	EventsURL string `json:"events_url"`
	RetryURL  string `json:"retry_url"`
}

func MakeJob(rctx routes.RequestContext, job *models.Job) *Job {
	return &Job{
		baseResourceDocument: baseResourceDocument{
			URL: routes.MakeJobLink(rctx, job.ID),
		},

		ID:        job.ID,
		UserID:    job.UserID,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,

		Status:          job.Status,
		Steps:           MakeSteps(job.Steps),
		StepTransitions: MakeTransitions(job.StepTransitions),
		Fingerprint:     job.Fingerprint,

		EventsURL: routes.MakeJobEventsLink(rctx, job.ID),
		RetryURL:  routes.MakeJobRetryLink(rctx, job.ID),
	}
}

func MakeJobs(rctx routes.RequestContext, jobs []*models.Job) []*Job {
	var docs []*Job
	for _, model := range jobs {
		docs = append(docs, MakeJob(rctx, model))
	}
	return docs
}

func (d *Job) GetID() string {
	return d.ID.String()
}

// JobsDocument holds a list of jobs. The list is always present, even when empty.
type JobsDocument struct {
	Jobs []*Job `json:"jobs"`
}

func MakeJobsDocument(rctx routes.RequestContext, jobs []*models.Job) *JobsDocument {
	doc := &JobsDocument{Jobs: MakeJobs(rctx, jobs)}
	if doc.Jobs == nil {
		doc.Jobs = []*Job{}
	}
	return doc
}

// Step describes one node of a job's pipeline.
type Step struct {
	ID models.StepID `json:"step_id"`
	// Name of the step, unique within the job.
	Name string `json:"name"`
	// Order is the dense 0-based submission index of the step.
	Order int `json:"order"`
	// Service identifies the worker pool that executes the step.
	Service models.ServiceName `json:"service"`
	// CommandSpec describes the subprocess the worker runs for the step.
	CommandSpec *models.CommandSpec `json:"command_spec"`
	// Inputs maps logical input names to paths, URIs or templates.
	Inputs map[string]string `json:"inputs,omitempty"`
	// Outputs maps logical output names to paths. After the step completes
	// these hold only resolved storage-relative paths.
	Outputs map[string]string `json:"outputs,omitempty"`
	// Status reflects where the step is in its lifecycle.
	Status     models.Status `json:"status"`
	StartedAt  *models.Time  `json:"started_at,omitempty"`
	FinishedAt *models.Time  `json:"finished_at,omitempty"`
	// ErrorMessage is set iff the step failed.
	ErrorMessage string `json:"error_message,omitempty"`
}

func MakeStep(step *models.Step) *Step {
	return &Step{
		ID:           step.ID,
		Name:         step.Name,
		Order:        step.Order,
		Service:      step.Service,
		CommandSpec:  step.CommandSpec,
		Inputs:       step.Inputs,
		Outputs:      step.Outputs,
		Status:       step.Status,
		StartedAt:    step.StartedAt,
		FinishedAt:   step.FinishedAt,
		ErrorMessage: step.ErrorMessage,
	}
}

func MakeSteps(steps []*models.Step) []*Step {
	var docs []*Step
	for _, model := range steps {
		docs = append(docs, MakeStep(model))
	}
	return docs
}

// Transition describes one edge of a job's pipeline.
type Transition struct {
	FromStepID models.StepID `json:"from_step_id"`
	ToStepID   models.StepID `json:"to_step_id"`
	// OutputToInputMapping maps source output names to target input names.
	// An empty mapping passes every output through under its own name.
	OutputToInputMapping map[string]string `json:"output_to_input_mapping,omitempty"`
}

func MakeTransition(transition *models.Transition) *Transition {
	return &Transition{
		FromStepID:           transition.FromStepID,
		ToStepID:             transition.ToStepID,
		OutputToInputMapping: transition.OutputToInputMapping,
	}
}

func MakeTransitions(transitions []*models.Transition) []*Transition {
	var docs []*Transition
	for _, model := range transitions {
		docs = append(docs, MakeTransition(model))
	}
	return docs
}

type CreateJobRequest struct {
	*models.NewJobPayload
}

func (d *CreateJobRequest) Bind(r *http.Request) error {
	if d.NewJobPayload == nil || len(d.Steps) == 0 {
		return gerror.NewErrValidationFailed("At least one step must be supplied")
	}
	return nil
}

// RetryReceipt describes the step a retried job resumed from.
type RetryReceipt struct {
	baseResourceDocument

	Status string       `json:"status"`
	JobID  models.JobID `json:"job_id"`
	// ResumeStep is the name of the step the job was resumed from.
	ResumeStep string `json:"resume_step"`
	// StepIndex is the submission order of the resumed step.
	StepIndex int `json:"step_index"`
}

func MakeRetryReceipt(rctx routes.RequestContext, receipt *models.RetryReceipt) *RetryReceipt {
	return &RetryReceipt{
		baseResourceDocument: baseResourceDocument{
			URL: routes.MakeJobLink(rctx, receipt.JobID),
		},
		Status:     receipt.Status,
		JobID:      receipt.JobID,
		ResumeStep: receipt.ResumeStep,
		StepIndex:  receipt.StepIndex,
	}
}

package store

import (
	"context"

	"github.com/listenup/listenup/common/models"
)

type JobStore interface {
	// Create a new job.
	// Returns gerror.ErrDuplicateJob if a job with the same id already exists.
	Create(ctx context.Context, job *models.Job) error
	// Read an existing job, looking it up by id.
	// Returns gerror.ErrNotFound if the job does not exist.
	Read(ctx context.Context, id models.JobID) (*models.Job, error)
	// ReadByFingerprint reads the most recently created job owned by a user with a
	// matching definition fingerprint.
	// Returns gerror.ErrNotFound if no such job exists.
	ReadByFingerprint(ctx context.Context, userID models.UserID, fingerprint string) (*models.Job, error)
	// UpdateJobStatus sets the job-level status and bumps updated_at.
	// Returns gerror.ErrNotFound if the job does not exist.
	UpdateJobStatus(ctx context.Context, id models.JobID, status models.Status) error
	// UpdateStep applies a partial update to a single step of a job, addressed by
	// step id. The write updates one document so concurrent status events cannot
	// interleave within a step.
	// Returns gerror.ErrNotFound if the job or step does not exist.
	UpdateStep(ctx context.Context, jobID models.JobID, stepID models.StepID, update StepUpdate) error
	// ReadStepOutputs returns the stored outputs of a single step of a job. A step
	// with no outputs recorded yet returns an empty map.
	// Returns gerror.ErrNotFound if the job or step does not exist.
	ReadStepOutputs(ctx context.Context, jobID models.JobID, stepID models.StepID) (map[string]string, error)
	// ListUserJobs lists all jobs owned by a user, newest first.
	ListUserJobs(ctx context.Context, userID models.UserID) ([]*models.Job, error)
}

// StepUpdate describes a partial update to one step of a job. Nil fields are
// left untouched.
type StepUpdate struct {
	Status *models.Status
	// Outputs replaces the step's resolved outputs when non-nil. A terminal
	// status event that carries no outputs must not clobber outputs recorded
	// earlier, so nil means "leave unchanged" rather than "set empty".
	Outputs      map[string]string
	StartedAt    *models.Time
	FinishedAt   *models.Time
	ErrorMessage *string
	// ClearError removes any recorded error message, used when a step is reset
	// to pending for a retry.
	ClearError bool
}

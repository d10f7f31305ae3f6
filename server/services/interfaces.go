package services

import (
	"context"
	"io"
	"net/http"

	"github.com/listenup/listenup/common/models"
)

type OrchestratorService interface {
	// CreateJob validates the payload, persists a new job built from it, prepares
	// the job's storage directories and dispatches every step with no upstream
	// dependency. Returns the job as stored, with every dispatched step already
	// marked processing.
	// Returns gerror.ErrValidationFailed if the payload is invalid.
	CreateJob(ctx context.Context, payload *models.NewJobPayload) (*models.Job, error)
	// GetJob reads an existing job.
	// Returns gerror.ErrNotFound if the job does not exist.
	GetJob(ctx context.Context, id models.JobID) (*models.Job, error)
	// ListUserJobs lists all jobs owned by a user, newest first.
	ListUserJobs(ctx context.Context, userID models.UserID) ([]*models.Job, error)
	// RetryJob resumes a terminal job from its first step (in submission order)
	// that never completed. The step is reset to pending, the job moves back to
	// processing and the step is dispatched again.
	// Returns gerror.ErrAlreadyComplete if every step of the job completed, and
	// gerror.ErrJobInFlight if the job is still pending or processing.
	RetryJob(ctx context.Context, id models.JobID) (*models.RetryReceipt, error)
	// HandleStatusEvent applies a worker status event to the stored job and
	// drives the transition graph forward: newly unblocked steps are dispatched,
	// and the job-level status is maintained. Malformed events are dropped with
	// a log rather than returned as errors so a poison message cannot wedge the
	// status loop.
	HandleStatusEvent(ctx context.Context, event *models.StepStatusEvent) error
}

type AssetService interface {
	// Upload stores the contents of reader as a new asset for the user,
	// optionally nested under a folder, and returns its description. The
	// asset's content type is sniffed from the uploaded bytes.
	// Returns gerror.ErrAssetUploadFailed if the asset could not be stored.
	Upload(ctx context.Context, userID models.UserID, folder string, filename string, reader io.Reader) (*models.Asset, error)
	// List returns one level of the user's upload area: file assets directly
	// inside the given folder ("" for the top level) plus a folder entry for
	// each subfolder. A non-empty glob pattern filters entries by name.
	List(ctx context.Context, userID models.UserID, folder string, pattern string) ([]*models.Asset, error)
}

// AssetStore provides access to raw asset bytes. Keys are forward-slash
// separated paths relative to the storage root; the local implementation
// writes them directly beneath the root so stored assets are readable as
// step inputs without translation.
type AssetStore interface {
	// Put writes all data in the source reader to the asset identified by key.
	// The caller is responsible for closing the reader.
	Put(ctx context.Context, key string, source io.Reader) error
	// Get returns a reader positioned at the beginning of the asset identified
	// by key. The caller is responsible for closing the reader.
	// Returns gerror.ErrNotFound if no such asset exists.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns a descriptor for every asset whose key begins with prefix.
	List(ctx context.Context, prefix string) ([]*models.AssetDescriptor, error)
}

type EventService interface {
	// PublishJobEvent fans a job lifecycle event out to subscribers watching the
	// job. Publishing never blocks; events for jobs nobody is watching are
	// discarded.
	PublishJobEvent(event *models.JobEvent)
	// ServeJobEvents streams the job's events to an HTTP client over
	// server-sent events until the client disconnects.
	ServeJobEvents(w http.ResponseWriter, r *http.Request, jobID models.JobID)
	// Close disconnects all subscribers and shuts the hub down.
	Close()
}

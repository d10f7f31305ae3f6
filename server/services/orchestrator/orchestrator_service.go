package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/queue"
	"github.com/listenup/listenup/common/storage"
	"github.com/listenup/listenup/common/templates"
	"github.com/listenup/listenup/common/util"
	"github.com/listenup/listenup/server/services"
	"github.com/listenup/listenup/server/store"
)

// maxStoredErrorMessageChars caps worker-reported error messages before they
// are persisted or fanned out to event subscribers.
const maxStoredErrorMessageChars = 4096

// OrchestratorService owns the job lifecycle: it persists submissions,
// dispatches steps to worker queues as their upstream dependencies complete,
// and folds worker status events back into the stored job.
type OrchestratorService struct {
	jobStore     store.JobStore
	queue        queue.Queue
	layout       *storage.Layout
	eventService services.EventService
	clock        clock.Clock
	logger.Log
}

func NewOrchestratorService(
	jobStore store.JobStore,
	queue queue.Queue,
	layout *storage.Layout,
	eventService services.EventService,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *OrchestratorService {
	return &OrchestratorService{
		jobStore:     jobStore,
		queue:        queue,
		layout:       layout,
		eventService: eventService,
		clock:        clk,
		Log:          logFactory("Orchestrator"),
	}
}

// CreateJob validates the payload, persists a new job built from it, prepares
// the job's storage directories and dispatches every step with no upstream
// dependency. Returns the job as stored, with every dispatched step already
// marked processing.
// Returns gerror.ErrValidationFailed if the payload is invalid.
func (s *OrchestratorService) CreateJob(ctx context.Context, payload *models.NewJobPayload) (*models.Job, error) {
	err := payload.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed("Invalid job submission").Wrap(err)
	}
	job, err := s.makeJob(payload)
	if err != nil {
		return nil, err
	}

	// Resubmissions of an identical definition are allowed; note them so an
	// operator can spot a client stuck in a submit loop
	existing, err := s.jobStore.ReadByFingerprint(ctx, job.UserID, job.Fingerprint)
	if err == nil {
		s.Infof("Job %s has the same definition fingerprint as earlier job %s", job.ID, existing.ID)
	} else if !gerror.IsNotFound(err) {
		s.Warnf("Failed to check job %s for a duplicate fingerprint: %v", job.ID, err)
	}

	err = s.jobStore.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	s.layout.PrepareJobDirs(job)
	s.eventService.PublishJobEvent(models.NewJobEvent(job.ID, models.JobEventTypeSubmit, job.Status, s.clock.Now()))

	for _, step := range job.InitialSteps() {
		err = s.dispatch(ctx, job, step)
		if err != nil {
			return nil, errors.Wrapf(err, "error dispatching step %q of job %s", step.Name, job.ID)
		}
	}
	err = s.updateJobStatus(ctx, job, models.StatusProcessing)
	if err != nil {
		return nil, err
	}
	s.Infof("Created job %s with %d steps for user %q", job.ID, len(job.Steps), job.UserID)
	return job, nil
}

// GetJob reads an existing job.
// Returns gerror.ErrNotFound if the job does not exist.
func (s *OrchestratorService) GetJob(ctx context.Context, id models.JobID) (*models.Job, error) {
	return s.jobStore.Read(ctx, id)
}

// ListUserJobs lists all jobs owned by a user, newest first.
func (s *OrchestratorService) ListUserJobs(ctx context.Context, userID models.UserID) ([]*models.Job, error) {
	return s.jobStore.ListUserJobs(ctx, userID)
}

// RetryJob resumes a terminal job from its first step (in submission order)
// that never completed. The step is reset to pending, the job moves back to
// processing and the step is dispatched again. Steps that completed earlier
// are left untouched so their outputs remain available to downstream
// transitions.
// Returns gerror.ErrAlreadyComplete if every step of the job completed, and
// gerror.ErrJobInFlight if the job is still being processed.
func (s *OrchestratorService) RetryJob(ctx context.Context, id models.JobID) (*models.RetryReceipt, error) {
	job, err := s.jobStore.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == models.StatusComplete {
		return nil, gerror.NewErrAlreadyComplete(fmt.Sprintf("Job %s already completed", job.ID))
	}
	if !job.Status.HasFinished() {
		return nil, gerror.NewErrJobInFlight(fmt.Sprintf("Job %s is still in flight; wait for it to finish before retrying", job.ID))
	}
	resume := job.FirstIncompleteStep()
	if resume == nil {
		return nil, gerror.NewErrAlreadyComplete(fmt.Sprintf("Job %s has no step left to retry", job.ID))
	}

	pending := models.StatusPending
	err = s.jobStore.UpdateStep(ctx, job.ID, resume.ID, store.StepUpdate{
		Status:     &pending,
		ClearError: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error resetting step %q of job %s", resume.Name, job.ID)
	}
	resume.Status = models.StatusPending
	resume.ErrorMessage = ""

	err = s.updateJobStatus(ctx, job, models.StatusProcessing)
	if err != nil {
		return nil, err
	}
	err = s.dispatch(ctx, job, resume)
	if err != nil {
		return nil, errors.Wrapf(err, "error dispatching step %q of job %s", resume.Name, job.ID)
	}
	s.Infof("Retrying job %s from step %q (index %d)", job.ID, resume.Name, resume.Order)
	return &models.RetryReceipt{
		Status:     models.RetryStatus,
		JobID:      job.ID,
		ResumeStep: resume.Name,
		StepIndex:  resume.Order,
	}, nil
}

// HandleStatusEvent applies a worker status event to the stored job and
// drives the transition graph forward. Malformed events and events for
// unknown jobs or steps are dropped with a log rather than returned as
// errors so a poison message cannot wedge the status loop.
func (s *OrchestratorService) HandleStatusEvent(ctx context.Context, event *models.StepStatusEvent) error {
	err := event.Validate()
	if err != nil {
		s.Warnf("Dropping malformed status event: %v", err)
		return nil
	}
	event.ErrorMessage = util.TruncateStringToMaxLength(event.ErrorMessage, maxStoredErrorMessageChars)

	update := store.StepUpdate{Status: &event.Status}
	// Events that carry no outputs must not clobber outputs recorded earlier
	if len(event.Outputs) > 0 {
		update.Outputs = event.Outputs
	}
	if event.Status.HasFinished() {
		finished := models.NewTime(s.eventTime(event))
		update.FinishedAt = &finished
	}
	if event.ErrorMessage != "" {
		update.ErrorMessage = &event.ErrorMessage
	}
	err = s.jobStore.UpdateStep(ctx, event.JobID, event.StepID, update)
	if err != nil {
		if gerror.IsNotFound(err) {
			s.Warnf("Dropping status event for unknown job %s / step %s", event.JobID, event.StepID)
			return nil
		}
		return errors.Wrapf(err, "error applying status event for step %s of job %s", event.StepID, event.JobID)
	}

	// Re-fetch so dispatch decisions see the state all concurrent workers have
	// reported so far, not the state when this event was emitted
	job, err := s.jobStore.Read(ctx, event.JobID)
	if err != nil {
		return errors.Wrapf(err, "error re-reading job %s", event.JobID)
	}

	jobEvent := models.NewJobEvent(job.ID, models.JobEventTypeStatusUpdate, event.Status, s.clock.Now())
	jobEvent.StepName = event.StepName
	s.eventService.PublishJobEvent(jobEvent)

	switch event.Status {
	case models.StatusComplete:
		return s.handleStepComplete(ctx, job)
	case models.StatusFailed:
		s.Infof("Step %q of job %s failed: %s", event.StepName, job.ID, event.ErrorMessage)
		return s.finalizeJob(ctx, job, models.StatusFailed, event)
	default:
		// Processing heartbeats update the store only
		return nil
	}
}

// handleStepComplete dispatches every step unblocked by a completion, and
// completes the job when nothing is left to run.
func (s *OrchestratorService) handleStepComplete(ctx context.Context, job *models.Job) error {
	if job.Status == models.StatusFailed {
		// Sibling steps in flight when a job fails may still complete and have
		// their outputs recorded, but they never trigger new dispatch
		s.Tracef("Job %s already failed; not dispatching successors", job.ID)
		return nil
	}
	ready := s.readySteps(job)
	for _, step := range ready {
		err := s.dispatch(ctx, job, step)
		if err != nil {
			return errors.Wrapf(err, "error dispatching step %q of job %s", step.Name, job.ID)
		}
	}
	if len(ready) == 0 && job.AllStepsComplete() {
		return s.finalizeJob(ctx, job, models.StatusComplete, nil)
	}
	return nil
}

// finalizeJob moves the job to a terminal status and announces it. Terminal
// statuses are sticky; only an explicit retry re-opens the job.
func (s *OrchestratorService) finalizeJob(ctx context.Context, job *models.Job, status models.Status, cause *models.StepStatusEvent) error {
	err := s.updateJobStatus(ctx, job, status)
	if err != nil {
		return err
	}
	finalEvent := models.NewJobEvent(job.ID, models.JobEventTypeFinalStatus, status, s.clock.Now())
	if cause != nil {
		finalEvent.StepName = cause.StepName
		finalEvent.Payload = map[string]interface{}{"error_message": cause.ErrorMessage}
	}
	s.eventService.PublishJobEvent(finalEvent)
	s.Infof("Job %s finished with status %q", job.ID, status)
	return nil
}

// readySteps returns, in submission order, every pending step whose inbound
// transitions all originate from complete steps. The evaluation is purely a
// function of the persisted job state, so each status event re-evaluating it
// is enough to never miss a wake-up.
func (s *OrchestratorService) readySteps(job *models.Job) []*models.Step {
	var ready []*models.Step
	for _, step := range job.Steps {
		if step.Status != models.StatusPending {
			continue
		}
		blocked := false
		for _, transition := range job.InboundTransitions(step.ID) {
			from := job.StepByID(transition.FromStepID)
			if from == nil || from.Status != models.StatusComplete {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, step)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Order < ready[j].Order })
	return ready
}

// dispatch marks a step as processing and pushes its fully resolved execute
// envelope onto the step's service queue. The store write happens before the
// push: a worker may legally report status the instant the envelope lands,
// and a later ready-set evaluation must already see the step as processing
// or it would dispatch it twice.
func (s *OrchestratorService) dispatch(ctx context.Context, job *models.Job, step *models.Step) error {
	processing := models.StatusProcessing
	started := models.NewTime(s.clock.Now())
	err := s.jobStore.UpdateStep(ctx, job.ID, step.ID, store.StepUpdate{
		Status:    &processing,
		StartedAt: &started,
	})
	if err != nil {
		return errors.Wrap(err, "error marking step as processing")
	}
	step.Status = models.StatusProcessing
	step.StartedAt = &started

	inputs, err := s.collectInputs(ctx, job, step)
	if err != nil {
		return err
	}
	inputs, err = templates.ResolveAll(inputs, job, step)
	if err != nil {
		return err
	}
	outputs, err := templates.ResolveAll(step.Outputs, job, step)
	if err != nil {
		return err
	}
	envelope := &models.StepExecuteEvent{
		JobID:         job.ID,
		StepID:        step.ID,
		StepName:      step.Name,
		Microservice:  step.Service,
		CommandSpec:   step.CommandSpec.ResolvePlaceholders(inputs, outputs),
		Inputs:        inputs,
		Outputs:       outputs,
		CompositeName: step.CompositeName(),
	}
	err = s.queue.Push(ctx, queue.RequestChannel(step.Service), envelope)
	if err != nil {
		return errors.Wrapf(err, "error pushing execute envelope for step %q", step.Name)
	}
	s.Debugf("Dispatched step %q of job %s to service %q", step.Name, job.ID, step.Service)
	return nil
}

// collectInputs merges upstream outputs into the step's static inputs, one
// inbound transition at a time in submission order. Keys supplied by a
// transition win over statically declared inputs, and later transitions win
// over earlier ones.
func (s *OrchestratorService) collectInputs(ctx context.Context, job *models.Job, step *models.Step) (map[string]string, error) {
	inputs := make(map[string]string, len(step.Inputs))
	for name, value := range step.Inputs {
		inputs[name] = value
	}
	for _, transition := range job.InboundTransitions(step.ID) {
		outputs, err := s.jobStore.ReadStepOutputs(ctx, job.ID, transition.FromStepID)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading outputs of step %s", transition.FromStepID)
		}
		for name, value := range transition.ApplyMapping(outputs) {
			inputs[name] = value
		}
	}
	return inputs, nil
}

// updateJobStatus writes the job-level status and mirrors it on the
// in-memory job.
func (s *OrchestratorService) updateJobStatus(ctx context.Context, job *models.Job, status models.Status) error {
	err := s.jobStore.UpdateJobStatus(ctx, job.ID, status)
	if err != nil {
		return errors.Wrapf(err, "error updating status of job %s", job.ID)
	}
	job.Status = status
	return nil
}

// eventTime returns the timestamp a worker stamped on an event, falling back
// to the orchestrator's clock when the event carries none or it is garbled.
func (s *OrchestratorService) eventTime(event *models.StepStatusEvent) time.Time {
	if event.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, event.Timestamp)
		if err == nil {
			return t
		}
		s.Tracef("Ignoring unparseable event timestamp %q", event.Timestamp)
	}
	return s.clock.Now()
}

// makeJob creates (but does not persist) a Job from a submission payload,
// generating ids, assigning dense submission-order indexes and rewriting
// name-based transitions to reference step ids.
func (s *OrchestratorService) makeJob(payload *models.NewJobPayload) (*models.Job, error) {
	hash, err := hashstructure.Hash(payload, hashstructure.FormatV2, &hashstructure.HashOptions{SlicesAsSets: true})
	if err != nil {
		return nil, errors.Wrap(err, "error hashing job definition")
	}
	now := models.NewTime(s.clock.Now())
	job := &models.Job{
		ID:          models.NewJobID(),
		UserID:      payload.UserID,
		Status:      models.StatusPending,
		Fingerprint: fmt.Sprintf("%x", hash),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stepIDsByName := make(map[string]models.StepID, len(payload.Steps))
	for i, stepPayload := range payload.Steps {
		step := &models.Step{
			ID:          models.NewStepID(),
			Name:        stepPayload.Name,
			Order:       i,
			Service:     stepPayload.Service,
			CommandSpec: stepPayload.CommandSpec.Clone(),
			Inputs:      stepPayload.Inputs,
			Outputs:     stepPayload.Outputs,
			Status:      models.StatusPending,
		}
		stepIDsByName[step.Name] = step.ID
		job.Steps = append(job.Steps, step)
	}
	for _, transitionPayload := range payload.StepTransitions {
		job.StepTransitions = append(job.StepTransitions, &models.Transition{
			FromStepID:           stepIDsByName[transitionPayload.FromStepName],
			ToStepID:             stepIDsByName[transitionPayload.ToStepName],
			OutputToInputMapping: transitionPayload.OutputToInputMapping,
		})
	}
	err = job.Validate()
	if err != nil {
		return nil, gerror.NewErrValidationFailed("Invalid job submission").Wrap(err)
	}
	return job, nil
}

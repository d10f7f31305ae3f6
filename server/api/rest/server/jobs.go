package server

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/server/api/rest/documents"
	"github.com/listenup/listenup/server/api/rest/routes"
	"github.com/listenup/listenup/server/services"
)

type JobAPI struct {
	orchestratorService services.OrchestratorService
	eventService        services.EventService
	*APIBase
}

func NewJobAPI(
	orchestratorService services.OrchestratorService,
	eventService services.EventService,
	logFactory logger.LogFactory) *JobAPI {
	return &JobAPI{
		orchestratorService: orchestratorService,
		eventService:        eventService,
		APIBase:             NewAPIBase(logFactory("JobAPI")),
	}
}

func (a *JobAPI) Create(w http.ResponseWriter, r *http.Request) {
	req := &documents.CreateJobRequest{}
	err := render.Bind(r, req)
	if err != nil {
		if !gerror.IsValidationFailed(err) {
			err = gerror.NewErrValidationFailed("The request body could not be parsed").Wrap(err)
		}
		a.Error(w, r, err)
		return
	}
	job, err := a.orchestratorService.CreateJob(r.Context(), req.NewJobPayload)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	res := documents.MakeJob(routes.RequestCtx(r), job)
	a.CreatedResource(w, r, res)
}

func (a *JobAPI) Get(w http.ResponseWriter, r *http.Request) {
	jobID, err := routes.JobIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	job, err := a.orchestratorService.GetJob(r.Context(), jobID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	res := documents.MakeJob(routes.RequestCtx(r), job)
	a.GotResource(w, r, res)
}

func (a *JobAPI) Retry(w http.ResponseWriter, r *http.Request) {
	jobID, err := routes.JobIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	receipt, err := a.orchestratorService.RetryJob(r.Context(), jobID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	res := documents.MakeRetryReceipt(routes.RequestCtx(r), receipt)
	a.JSON(w, r, res)
}

// Events streams the job's lifecycle events to the client over server-sent
// events until the client disconnects.
func (a *JobAPI) Events(w http.ResponseWriter, r *http.Request) {
	jobID, err := routes.JobIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	// Subscribing to a job that doesn't exist is a 404, not a silent
	// stream that will never produce an event.
	_, err = a.orchestratorService.GetJob(r.Context(), jobID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.eventService.ServeJobEvents(w, r, jobID)
}

func (a *JobAPI) ListUserJobs(w http.ResponseWriter, r *http.Request) {
	userID, err := routes.UserIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	jobs, err := a.orchestratorService.ListUserJobs(r.Context(), userID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	res := documents.MakeJobsDocument(routes.RequestCtx(r), jobs)
	a.JSON(w, r, res)
}

package server_test

import (
	"context"
	"io"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/api/rest/client"
	"github.com/listenup/listenup/server/api/rest/server"
	"github.com/listenup/listenup/server/api/rest/server/servertest"
	"github.com/listenup/listenup/server/services/event"
)

func testLogFactory(t *testing.T) logger.LogFactory {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	return logger.MakeLogrusLogFactoryStdOut(logRegistry)
}

// fakeOrchestrator hands back jobs built straight from payloads so the API
// layer can be tested without a store or queue behind it.
type fakeOrchestrator struct {
	mu       sync.Mutex
	jobs     map[models.JobID]*models.Job
	order    []models.JobID
	receipt  *models.RetryReceipt
	retryErr error
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{jobs: make(map[models.JobID]*models.Job)}
}

func (f *fakeOrchestrator) addJob(job *models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	f.order = append(f.order, job.ID)
}

func (f *fakeOrchestrator) CreateJob(ctx context.Context, payload *models.NewJobPayload) (*models.Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, gerror.NewErrValidationFailed(err.Error())
	}
	now := time.Now()
	job := &models.Job{
		ID:        models.NewJobID(),
		UserID:    payload.UserID,
		Status:    models.StatusProcessing,
		CreatedAt: models.NewTime(now),
		UpdatedAt: models.NewTime(now),
	}
	stepIDs := make(map[string]models.StepID, len(payload.Steps))
	for i, step := range payload.Steps {
		stored := &models.Step{
			ID:          models.NewStepID(),
			Name:        step.Name,
			Order:       i,
			Service:     step.Service,
			CommandSpec: step.CommandSpec,
			Inputs:      step.Inputs,
			Outputs:     step.Outputs,
			Status:      models.StatusPending,
		}
		job.Steps = append(job.Steps, stored)
		stepIDs[step.Name] = stored.ID
	}
	for _, transition := range payload.StepTransitions {
		job.StepTransitions = append(job.StepTransitions, &models.Transition{
			FromStepID:           stepIDs[transition.FromStepName],
			ToStepID:             stepIDs[transition.ToStepName],
			OutputToInputMapping: transition.OutputToInputMapping,
		})
	}
	f.addJob(job)
	return job, nil
}

func (f *fakeOrchestrator) GetJob(ctx context.Context, id models.JobID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, gerror.NewErrNotFound("Not Found").IDetail("job_id", id)
	}
	return job, nil
}

func (f *fakeOrchestrator) ListUserJobs(ctx context.Context, userID models.UserID) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []*models.Job
	for i := len(f.order) - 1; i >= 0; i-- {
		job := f.jobs[f.order[i]]
		if job.UserID == userID {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (f *fakeOrchestrator) RetryJob(ctx context.Context, id models.JobID) (*models.RetryReceipt, error) {
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return nil, gerror.NewErrNotFound("Not Found").IDetail("job_id", id)
}

func (f *fakeOrchestrator) HandleStatusEvent(ctx context.Context, event *models.StepStatusEvent) error {
	panic("not implemented")
}

type recordedUpload struct {
	userID   models.UserID
	folder   string
	filename string
	data     []byte
}

type listCall struct {
	userID  models.UserID
	folder  string
	pattern string
}

// fakeAssetService records uploads and echoes back descriptions shaped like
// the real asset service would produce.
type fakeAssetService struct {
	mu        sync.Mutex
	uploads   []recordedUpload
	uploadErr error
	listed    []*models.Asset
	listCalls []listCall
}

func (f *fakeAssetService) Upload(ctx context.Context, userID models.UserID, folder string, filename string, reader io.Reader) (*models.Asset, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, recordedUpload{userID: userID, folder: folder, filename: filename, data: data})
	return &models.Asset{
		Name:        filename,
		URI:         "user://" + path.Join("uploads", folder, filename),
		Type:        models.AssetTypeFile,
		Folder:      folder,
		UserID:      userID,
		StoragePath: path.Join("users", userID.String(), "uploads", folder, filename),
		ContentType: "application/octet-stream",
		Size:        int64(len(data)),
		UploadedAt:  models.NewTimePtr(time.Now()),
	}, nil
}

func (f *fakeAssetService) List(ctx context.Context, userID models.UserID, folder string, pattern string) ([]*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, listCall{userID: userID, folder: folder, pattern: pattern})
	return f.listed, nil
}

type apiHarness struct {
	orchestrator *fakeOrchestrator
	assets       *fakeAssetService
	events       *event.EventService
	serverURL    string
	client       *client.APIClient
}

func newTestAPIServer(t *testing.T) *apiHarness {
	logFactory := testLogFactory(t)
	orchestrator := newFakeOrchestrator()
	assets := &fakeAssetService{}
	eventService := event.NewEventService(logFactory)
	t.Cleanup(eventService.Close)

	router := server.NewAppAPIRouter(
		server.NewJobAPI(orchestrator, eventService, logFactory),
		server.NewAssetAPI(assets, logFactory),
		server.NewRootAPI(logFactory),
		logFactory,
	)
	apiServer, err := server.NewAppAPIServer(router, server.AppAPIServerConfig{}, servertest.HTTPTestServerFactory(), logFactory)
	require.NoError(t, err)
	apiServer.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, apiServer.Stop(ctx))
	})

	apiClient, err := client.NewAPIClient([]string{apiServer.GetServerURL()}, logFactory)
	require.NoError(t, err)

	return &apiHarness{
		orchestrator: orchestrator,
		assets:       assets,
		events:       eventService,
		serverURL:    apiServer.GetServerURL(),
		client:       apiClient,
	}
}

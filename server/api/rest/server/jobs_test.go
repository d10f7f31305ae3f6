package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/require"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/api/rest/documents"
)

func testPayload() *models.NewJobPayload {
	return &models.NewJobPayload{
		UserID: "u1",
		Steps: []*models.NewStepPayload{
			{
				Name:    "analyze",
				Service: "tempo",
				CommandSpec: &models.CommandSpec{
					Program: "beatfinder",
					Flags:   models.Flags{{Name: "mode", Value: "fast"}},
				},
				Inputs:  map[string]string{"audio": "users/u1/uploads/mix.wav"},
				Outputs: map[string]string{"beats": "users/{{user_id}}/jobs/{{job_id}}/{{composite_name}}/beats.json"},
			},
			{
				Name:    "stretch",
				Service: "stretcher",
				CommandSpec: &models.CommandSpec{
					Program: "timestretcher",
					Flags:   models.Flags{{Name: "ratio", Value: "1.25"}},
				},
			},
		},
		StepTransitions: []*models.NewTransitionPayload{
			{FromStepName: "analyze", ToStepName: "stretch", OutputToInputMapping: map[string]string{"beats": "beatgrid"}},
		},
	}
}

func TestCreateJobReturnsStoredJob(t *testing.T) {
	h := newTestAPIServer(t)

	doc, err := h.client.CreateJob(context.Background(), testPayload())
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, doc.Status)
	require.Equal(t, models.UserID("u1"), doc.UserID)
	require.Len(t, doc.Steps, 2)
	require.Equal(t, "analyze", doc.Steps[0].Name)
	require.Len(t, doc.StepTransitions, 1)
	require.Equal(t, map[string]string{"beats": "beatgrid"}, doc.StepTransitions[0].OutputToInputMapping)

	jobURL := fmt.Sprintf("%s/api/v1/jobs/%s", h.serverURL, doc.ID)
	require.Equal(t, jobURL, doc.URL)
	require.Equal(t, jobURL+"/events", doc.EventsURL)
	require.Equal(t, jobURL+"/retry", doc.RetryURL)
}

func TestCreateJobSetsCreatedHeaders(t *testing.T) {
	h := newTestAPIServer(t)

	body, err := json.Marshal(testPayload())
	require.NoError(t, err)
	res, err := http.Post(h.serverURL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	doc := &documents.Job{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(doc))
	require.Equal(t, doc.ID.String(), res.Header.Get("Id"))
	require.Equal(t, doc.URL, res.Header.Get("Location"))
}

func TestCreateJobRejectsCyclicPayload(t *testing.T) {
	h := newTestAPIServer(t)

	payload := testPayload()
	payload.StepTransitions = append(payload.StepTransitions, &models.NewTransitionPayload{
		FromStepName: "stretch",
		ToStepName:   "analyze",
	})
	_, err := h.client.CreateJob(context.Background(), payload)
	require.Error(t, err)
	require.True(t, gerror.IsValidationFailed(err), "expected a validation error, got %v", err)
}

func TestCreateJobRejectsMalformedBody(t *testing.T) {
	h := newTestAPIServer(t)

	res, err := http.Post(h.serverURL+"/api/v1/jobs", "application/json", strings.NewReader("{this is not json"))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	errDoc := &documents.ErrorDocument{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(errDoc))
	require.Equal(t, gerror.ErrCodeValidationFailed, errDoc.Code)
}

func TestGetJob(t *testing.T) {
	h := newTestAPIServer(t)

	created, err := h.client.CreateJob(context.Background(), testPayload())
	require.NoError(t, err)

	doc, err := h.client.GetJob(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, doc.ID)
	require.Len(t, doc.Steps, 2)

	_, err = h.client.GetJob(context.Background(), models.JobID("does-not-exist"))
	require.Error(t, err)
	require.True(t, gerror.IsNotFound(err), "expected a not found error, got %v", err)
}

func TestRetryJob(t *testing.T) {
	h := newTestAPIServer(t)

	created, err := h.client.CreateJob(context.Background(), testPayload())
	require.NoError(t, err)
	h.orchestrator.receipt = &models.RetryReceipt{
		Status:     models.RetryStatus,
		JobID:      created.ID,
		ResumeStep: "stretch",
		StepIndex:  1,
	}

	doc, err := h.client.RetryJob(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, models.RetryStatus, doc.Status)
	require.Equal(t, created.ID, doc.JobID)
	require.Equal(t, "stretch", doc.ResumeStep)
	require.Equal(t, 1, doc.StepIndex)
	require.Equal(t, fmt.Sprintf("%s/api/v1/jobs/%s", h.serverURL, created.ID), doc.URL)
}

func TestRetryJobInFlight(t *testing.T) {
	h := newTestAPIServer(t)

	h.orchestrator.retryErr = gerror.NewErrJobInFlight("Job is still processing and cannot be retried")
	_, err := h.client.RetryJob(context.Background(), models.JobID("some-job"))
	require.Error(t, err)
	require.True(t, gerror.IsJobInFlight(err), "expected a job in flight error, got %v", err)
}

func TestListUserJobs(t *testing.T) {
	h := newTestAPIServer(t)

	first, err := h.client.CreateJob(context.Background(), testPayload())
	require.NoError(t, err)
	second, err := h.client.CreateJob(context.Background(), testPayload())
	require.NoError(t, err)
	otherUser := testPayload()
	otherUser.UserID = "u2"
	_, err = h.client.CreateJob(context.Background(), otherUser)
	require.NoError(t, err)

	doc, err := h.client.ListUserJobs(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, doc.Jobs, 2)
	// Newest first
	require.Equal(t, second.ID, doc.Jobs[0].ID)
	require.Equal(t, first.ID, doc.Jobs[1].ID)

	empty, err := h.client.ListUserJobs(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, empty.Jobs)
	require.Empty(t, empty.Jobs)
}

func TestJobEventsStreamOverAPI(t *testing.T) {
	h := newTestAPIServer(t)

	created, err := h.client.CreateJob(context.Background(), testPayload())
	require.NoError(t, err)

	events := make(chan *sse.Event, 4)
	sseClient := sse.NewClient(fmt.Sprintf("%s/api/v1/jobs/%s/events", h.serverURL, created.ID))
	require.NoError(t, sseClient.SubscribeChanRaw(events))
	t.Cleanup(func() { sseClient.Unsubscribe(events) })

	// Publishing is fire-and-forget, so keep publishing until the
	// subscription is established and an event comes back.
	var received *sse.Event
	require.Eventually(t, func() bool {
		h.events.PublishJobEvent(models.NewJobEvent(created.ID, models.JobEventTypeStatusUpdate, models.StatusProcessing, time.Now()))
		select {
		case event := <-events:
			received = event
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	require.Equal(t, []byte(models.JobEventTypeStatusUpdate), received.Event)
	jobEvent := &models.JobEvent{}
	require.NoError(t, json.Unmarshal(received.Data, jobEvent))
	require.Equal(t, created.ID, jobEvent.JobID)
	require.Equal(t, models.StatusProcessing, jobEvent.Status)
}

func TestJobEventsUnknownJobIsNotFound(t *testing.T) {
	h := newTestAPIServer(t)

	res, err := http.Get(h.serverURL + "/api/v1/jobs/does-not-exist/events")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	errDoc := &documents.ErrorDocument{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(errDoc))
	require.Equal(t, gerror.ErrCodeNotFound, errDoc.Code)
}

func TestUnversionedRoutesServeSameAPI(t *testing.T) {
	h := newTestAPIServer(t)

	body, err := json.Marshal(testPayload())
	require.NoError(t, err)
	res, err := http.Post(h.serverURL+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	created := &documents.Job{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(created))

	// The same resource is reachable with and without the version prefix
	getRes, err := http.Get(fmt.Sprintf("%s/jobs/%s", h.serverURL, created.ID))
	require.NoError(t, err)
	defer getRes.Body.Close()
	require.Equal(t, http.StatusOK, getRes.StatusCode)
	fetched := &documents.Job{}
	require.NoError(t, json.NewDecoder(getRes.Body).Decode(fetched))
	require.Equal(t, created.ID, fetched.ID)

	versioned, err := h.client.GetJob(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, versioned.ID)
}

func TestRootDocumentListsEntryPoints(t *testing.T) {
	h := newTestAPIServer(t)

	res, err := http.Get(h.serverURL + "/api/v1/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	doc := documents.GetRootDocumentResponse{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&doc))
	require.Equal(t, h.serverURL+"/api/v1/jobs", doc["jobs_url"])
}

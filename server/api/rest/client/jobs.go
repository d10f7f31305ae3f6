package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/r3labs/sse/v2"

	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/api/rest/documents"
)

// CreateJob submits a new pipeline definition and returns the stored job,
// with every initial step already dispatched.
func (a *APIClient) CreateJob(ctx context.Context, payload *models.NewJobPayload) (*documents.Job, error) {
	code, _, body, err := a.post(ctx, nil, "/api/v1/jobs", payload)
	if err != nil {
		return nil, err
	}
	if !a.isOneOf(code, []int{http.StatusOK, http.StatusCreated}) {
		return nil, a.makeHTTPError(code, body)
	}
	doc := &documents.Job{}
	err = json.Unmarshal(body, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing response body: %s", string(body[:]))
	}
	return doc, nil
}

// GetJob retrieves a job by ID.
func (a *APIClient) GetJob(ctx context.Context, jobID models.JobID) (*documents.Job, error) {
	url := fmt.Sprintf("/api/v1/jobs/%s", jobID)
	code, _, body, err := a.get(ctx, nil, url)
	if err != nil {
		return nil, err
	}
	if !a.isOneOf(code, []int{http.StatusOK}) {
		return nil, a.makeHTTPError(code, body)
	}
	doc := &documents.Job{}
	err = json.Unmarshal(body, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing response body: %s", string(body[:]))
	}
	return doc, nil
}

// RetryJob resumes a terminal job from its first incomplete step.
func (a *APIClient) RetryJob(ctx context.Context, jobID models.JobID) (*documents.RetryReceipt, error) {
	url := fmt.Sprintf("/api/v1/jobs/%s/retry", jobID)
	code, _, body, err := a.post(ctx, nil, url, nil)
	if err != nil {
		return nil, err
	}
	if !a.isOneOf(code, []int{http.StatusOK}) {
		return nil, a.makeHTTPError(code, body)
	}
	doc := &documents.RetryReceipt{}
	err = json.Unmarshal(body, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing response body: %s", string(body[:]))
	}
	return doc, nil
}

// ListUserJobs retrieves all jobs owned by a user, newest first.
func (a *APIClient) ListUserJobs(ctx context.Context, userID models.UserID) (*documents.JobsDocument, error) {
	url := fmt.Sprintf("/api/v1/users/%s/jobs", userID)
	code, _, body, err := a.get(ctx, nil, url)
	if err != nil {
		return nil, err
	}
	if !a.isOneOf(code, []int{http.StatusOK}) {
		return nil, a.makeHTTPError(code, body)
	}
	doc := &documents.JobsDocument{}
	err = json.Unmarshal(body, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing response body: %s", string(body[:]))
	}
	return doc, nil
}

// WatchJobEvents subscribes to the job's server-sent event stream and invokes
// handler for each event, blocking until the context is cancelled or the
// server closes the stream.
func (a *APIClient) WatchJobEvents(ctx context.Context, jobID models.JobID, handler func(event *sse.Event)) error {
	endpoint, err := a.getRequestEndpoint(fmt.Sprintf("/api/v1/jobs/%s/events", jobID))
	if err != nil {
		return fmt.Errorf("error getting request endpoint: %w", err)
	}
	client := sse.NewClient(endpoint)
	return client.SubscribeRawWithContext(ctx, handler)
}

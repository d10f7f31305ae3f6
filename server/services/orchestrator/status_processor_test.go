package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/listenup/listenup/common/models"
)

// fakeOrchestrator records the status events handed to it by the processor.
type fakeOrchestrator struct {
	mu      sync.Mutex
	handled []*models.StepStatusEvent
	gotC    chan struct{}
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{gotC: make(chan struct{}, 16)}
}

func (f *fakeOrchestrator) CreateJob(ctx context.Context, payload *models.NewJobPayload) (*models.Job, error) {
	panic("not implemented")
}

func (f *fakeOrchestrator) GetJob(ctx context.Context, id models.JobID) (*models.Job, error) {
	panic("not implemented")
}

func (f *fakeOrchestrator) ListUserJobs(ctx context.Context, userID models.UserID) ([]*models.Job, error) {
	panic("not implemented")
}

func (f *fakeOrchestrator) RetryJob(ctx context.Context, id models.JobID) (*models.RetryReceipt, error) {
	panic("not implemented")
}

func (f *fakeOrchestrator) HandleStatusEvent(ctx context.Context, event *models.StepStatusEvent) error {
	f.mu.Lock()
	f.handled = append(f.handled, event)
	f.mu.Unlock()
	f.gotC <- struct{}{}
	return nil
}

func (f *fakeOrchestrator) recorded() []*models.StepStatusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]*models.StepStatusEvent, len(f.handled))
	copy(events, f.handled)
	return events
}

func waitForHandled(t *testing.T, c chan struct{}) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a status event to be handled")
	}
}

func TestStatusProcessorDrainsChannel(t *testing.T) {
	logFactory := testLogFactory(t)
	queue := newFakeQueue()
	orchestrator := newFakeOrchestrator()
	processor := NewStatusProcessor(orchestrator, queue, clock.NewMock(), logFactory)
	processor.Start()
	defer processor.Stop()

	event := models.NewStepStatusEvent(models.NewJobID(), models.NewStepID(), "analyze", models.StatusComplete, time.Now())
	event.Outputs = map[string]string{"beats": "users/u1/jobs/j1/000_tempo/beats.json"}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	queue.popC <- payload
	waitForHandled(t, orchestrator.gotC)

	// An undecodable message is dropped; the loop keeps consuming
	queue.popC <- []byte("{this is not json")
	queue.popC <- payload
	waitForHandled(t, orchestrator.gotC)

	handled := orchestrator.recorded()
	require.Len(t, handled, 2)
	require.Equal(t, event.JobID, handled[0].JobID)
	require.Equal(t, event.StepID, handled[0].StepID)
	require.Equal(t, models.StatusComplete, handled[0].Status)
	require.Equal(t, event.Outputs, handled[0].Outputs)
}

func TestStatusProcessorStops(t *testing.T) {
	logFactory := testLogFactory(t)
	queue := newFakeQueue()
	processor := NewStatusProcessor(newFakeOrchestrator(), queue, clock.NewMock(), logFactory)
	processor.Start()

	stopped := make(chan struct{})
	go func() {
		processor.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the status processor to stop")
	}
}

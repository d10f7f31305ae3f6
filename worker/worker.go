package worker

import (
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/net/context"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/queue"
	"github.com/listenup/listenup/common/util"
)

const (
	// DefaultPollTimeout is how long a request poll blocks before checking
	// for shutdown.
	DefaultPollTimeout = 10 * time.Second
	// DefaultExecTimeout bounds the subprocess runtime for a single step.
	DefaultExecTimeout  = 5 * time.Minute
	requestErrorBackoff = 5 * time.Second
	// statusUpdateTimeout is the maximum time to spend trying to publish a step status.
	statusUpdateTimeout = time.Minute
)

// getStatusUpdateContext returns a context with a timeout to use when
// publishing step statuses.
func getStatusUpdateContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), statusUpdateTimeout)
}

// Worker implements a Service that drains one service's request channel and
// executes each dispatched step. A worker handles one envelope at a time;
// capacity scales by running more worker processes against the same queue.
type Worker struct {
	*util.StatefulService
	service     models.ServiceName
	queue       queue.Queue
	executor    *Executor
	pollTimeout time.Duration
	clock       clock.Clock
	logger.Log
}

func NewWorker(
	service models.ServiceName,
	queue queue.Queue,
	executor *Executor,
	pollTimeout time.Duration,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *Worker {
	if pollTimeout == 0 {
		pollTimeout = DefaultPollTimeout
	}
	w := &Worker{
		service:     service,
		queue:       queue,
		executor:    executor,
		pollTimeout: pollTimeout,
		clock:       clk,
		Log:         logFactory("Worker"),
	}
	w.StatefulService = util.NewStatefulService(context.Background(), w.Log, w.loop)
	return w
}

func (w *Worker) loop() {
	channel := queue.RequestChannel(w.service)
	w.Infof("Waiting for %s step requests on %q...", w.service, channel)
	for {
		select {
		case <-w.StatefulService.Ctx().Done():
			w.Tracef("Worker closed; exiting...")
			return
		default:
		}

		payload, err := w.queue.BlockingPop(w.StatefulService.Ctx(), channel, w.pollTimeout)
		if err != nil {
			if w.StatefulService.Ctx().Err() != nil {
				return
			}
			w.Errorf("Error popping step request: %v", err)
			w.clock.Sleep(requestErrorBackoff)
			continue
		}
		if payload == nil {
			// Poll timeout with nothing queued; loop so shutdown is noticed
			continue
		}
		w.processPayload(payload)
	}
}

// processPayload parses and executes one request envelope. Malformed
// envelopes are dropped with a log so a poison message cannot wedge the
// worker.
func (w *Worker) processPayload(payload []byte) {
	event := &models.StepExecuteEvent{}
	err := json.Unmarshal(payload, event)
	if err != nil {
		w.Warnf("Dropping undecodable step request: %v", err)
		return
	}
	err = event.Validate()
	if err != nil {
		w.Warnf("Dropping invalid step request: %v", err)
		return
	}
	w.executor.ExecuteStep(w.StatefulService.Ctx(), event)
}

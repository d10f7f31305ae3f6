package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/net/context"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/queue"
	"github.com/listenup/listenup/common/util"
	"github.com/listenup/listenup/server/services"
)

const (
	defaultStatusPollTimeout = 5 * time.Second
	statusErrorBackoff       = 5 * time.Second
)

// StatusProcessor implements a Service that drains the shared status channel
// and feeds each event to the orchestrator. It is the only consumer of the
// channel, so dispatch decisions are linearized with respect to the order
// status events are observed.
type StatusProcessor struct {
	*util.StatefulService
	orchestrator services.OrchestratorService
	queue        queue.Queue
	pollTimeout  time.Duration
	clock        clock.Clock
	logger.Log
}

func NewStatusProcessor(
	orchestrator services.OrchestratorService,
	queue queue.Queue,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *StatusProcessor {
	s := &StatusProcessor{
		orchestrator: orchestrator,
		queue:        queue,
		pollTimeout:  defaultStatusPollTimeout,
		clock:        clk,
		Log:          logFactory("StatusProcessor"),
	}
	s.StatefulService = util.NewStatefulService(context.Background(), s.Log, s.loop)
	return s
}

func (s *StatusProcessor) loop() {
	s.Tracef("Starting status event polling loop...")
	for {
		select {
		case <-s.StatefulService.Ctx().Done():
			s.Tracef("Status processor closed; exiting...")
			return
		default:
		}

		payload, err := s.queue.BlockingPop(s.StatefulService.Ctx(), queue.StatusChannel, s.pollTimeout)
		if err != nil {
			if s.StatefulService.Ctx().Err() != nil {
				return
			}
			s.Errorf("Error popping status event: %v", err)
			s.clock.Sleep(statusErrorBackoff)
			continue
		}
		if payload == nil {
			// Poll timeout with nothing queued; loop so shutdown is noticed
			continue
		}
		s.processPayload(payload)
	}
}

// processPayload parses and applies one status envelope. A payload that
// cannot be parsed is dropped with a log; failing loudly would let a single
// poison message wedge the loop forever.
func (s *StatusProcessor) processPayload(payload []byte) {
	event := &models.StepStatusEvent{}
	err := json.Unmarshal(payload, event)
	if err != nil {
		s.Warnf("Dropping undecodable status event: %v", err)
		return
	}
	err = s.orchestrator.HandleStatusEvent(s.StatefulService.Ctx(), event)
	if err != nil {
		s.Errorf("Error handling status event for job %s: %v", event.JobID, err)
	}
}

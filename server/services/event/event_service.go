package event

import (
	"encoding/json"
	"net/http"

	"github.com/r3labs/sse/v2"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
)

// EventService fans job events out to HTTP subscribers over Server-Sent
// Events. Streams are keyed by job ID and exist only while at least one
// subscriber is connected. Events are not persisted; a subscriber that
// connects after an event was published never sees it, and events published
// to a job nobody is watching are discarded.
type EventService struct {
	server *sse.Server
	logger.Log
}

func NewEventService(logFactory logger.LogFactory) *EventService {
	server := sse.New()
	// Streams come and go with their subscribers, and nothing is replayed to
	// a late subscriber
	server.AutoStream = true
	server.AutoReplay = false
	return &EventService{
		server: server,
		Log:    logFactory("EventService"),
	}
}

// PublishJobEvent publishes an event to the job's stream. Events for a job
// nobody is watching are discarded; deliveries to subscribers are buffered so
// publishing does not wait on slow clients.
func (s *EventService) PublishJobEvent(event *models.JobEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.Errorf("Failed to marshal %s event for job %s: %v", event.Type, event.JobID, err)
		return
	}
	stream := event.JobID.String()
	if !s.server.StreamExists(stream) {
		// Streams only exist while subscribed, so nobody is watching this job
		return
	}
	s.server.Publish(stream, &sse.Event{
		Event: []byte(event.Type),
		Data:  data,
	})
	s.Tracef("Published %s event for job %s", event.Type, event.JobID)
}

// ServeJobEvents subscribes the HTTP client to the job's event stream and
// blocks until the client disconnects.
func (s *EventService) ServeJobEvents(w http.ResponseWriter, r *http.Request, jobID models.JobID) {
	// The underlying server selects its stream from the query string
	query := r.URL.Query()
	query.Set("stream", jobID.String())
	r.URL.RawQuery = query.Encode()
	s.server.HTTPHandler(w, r)
}

// Close shuts down every stream, disconnecting all subscribers.
func (s *EventService) Close() {
	s.server.Close()
}

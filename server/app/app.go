package app

import (
	"github.com/listenup/listenup/server/api/rest/server"
	"github.com/listenup/listenup/server/services"
	"github.com/listenup/listenup/server/services/orchestrator"
	"github.com/listenup/listenup/server/store/jobs"
)

type Server struct {
	JobStore        *jobs.JobStore
	StatusProcessor *orchestrator.StatusProcessor
	EventService    services.EventService
	CoreAPIServer   *server.AppAPIServer
}

func NewServer(
	jobStore *jobs.JobStore,
	statusProcessor *orchestrator.StatusProcessor,
	eventService services.EventService,
	coreAPIServer *server.AppAPIServer,
) *Server {
	return &Server{
		JobStore:        jobStore,
		StatusProcessor: statusProcessor,
		EventService:    eventService,
		CoreAPIServer:   coreAPIServer,
	}
}

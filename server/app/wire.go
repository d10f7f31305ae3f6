//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/wire"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/queue"
	"github.com/listenup/listenup/common/storage"
	"github.com/listenup/listenup/server/api/rest/server"
	"github.com/listenup/listenup/server/services"
	"github.com/listenup/listenup/server/services/assets"
	"github.com/listenup/listenup/server/services/event"
	"github.com/listenup/listenup/server/services/orchestrator"
	"github.com/listenup/listenup/server/store"
	"github.com/listenup/listenup/server/store/jobs"
)

func New(ctx context.Context, config *ServerConfig) (*Server, func(), error) {
	panic(wire.Build(
		NewServer,
		wire.FieldsOf(new(*ServerConfig), "CoreAPIConfig", "DatabaseConfig", "QueueConfig", "AssetStoreConfig", "StorageRoot", "LogLevels"),
		store.NewDatabase,

		// Stores
		jobs.NewStore,
		wire.Bind(new(store.JobStore), new(*jobs.JobStore)),

		// Services
		queue.NewRedisQueue,
		wire.Bind(new(queue.Queue), new(*queue.RedisQueue)),
		storage.NewLayout,
		orchestrator.NewOrchestratorService,
		wire.Bind(new(services.OrchestratorService), new(*orchestrator.OrchestratorService)),
		orchestrator.NewStatusProcessor,
		event.NewEventService,
		wire.Bind(new(services.EventService), new(*event.EventService)),
		assets.NewAssetService,
		wire.Bind(new(services.AssetService), new(*assets.AssetService)),
		AssetStoreFactory,

		// APIs
		server.NewRootAPI,
		server.NewJobAPI,
		server.NewAssetAPI,

		// HTTP Servers
		server.NewAppAPIServer,
		server.NewAppAPIRouter,
		server.RealHTTPServerFactory,

		logger.NewLogRegistry,
		logger.MakeLogrusLogFactoryStdOut,
		clock.New,
	))
}

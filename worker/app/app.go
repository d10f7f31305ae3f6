package app

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/queue"
	"github.com/listenup/listenup/common/storage"
	"github.com/listenup/listenup/worker"
	"github.com/listenup/listenup/worker/runtime"
)

// New builds a ready-to-start worker from config. The returned cleanup
// function releases the queue connection and must be called after the worker
// has stopped.
func New(ctx context.Context, config *WorkerConfig) (*worker.Worker, func(), error) {
	logRegistry, err := logger.NewLogRegistry(config.LogLevels)
	if err != nil {
		return nil, nil, err
	}
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)

	redisQueue, cleanup, err := queue.NewRedisQueue(ctx, config.QueueConfig, logFactory)
	if err != nil {
		return nil, nil, err
	}

	layout := storage.NewLayout(config.StorageRoot, logFactory)
	clk := clock.New()
	executor := worker.NewExecutor(config.Service, config.ExecutorConfig, layout, runtime.NewExecRuntime(), redisQueue, clk, logFactory)
	w := worker.NewWorker(config.Service, redisQueue, executor, config.PollTimeout, clk, logFactory)

	return w, cleanup, nil
}

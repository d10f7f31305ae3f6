package app

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/queue"
	"github.com/listenup/listenup/common/storage"
	"github.com/listenup/listenup/worker"
)

// LogSafeFlags is a list of flags by name whose values are safe to log.
var LogSafeFlags = []string{
	"service",
	"redis_host",
	"redis_port",
	"storage_root",
	"scratch_root",
	"poll_timeout",
	"exec_timeout",
	"log_levels",
}

type WorkerConfig struct {
	Service        models.ServiceName
	QueueConfig    queue.QueueConfig
	StorageRoot    storage.StorageRoot
	PollTimeout    time.Duration
	ExecutorConfig worker.ExecutorConfig
	LogLevels      logger.LogLevelConfig
}

// ConfigFromFlags builds the worker configuration from command-line flags.
// Connection flags fall back to the environment variables the deployment
// images set: SERVICE, REDIS_HOST, REDIS_PORT and STORAGE_ROOT.
func ConfigFromFlags() (*WorkerConfig, error) {
	var (
		service     string
		storageRoot string
		logLevels   string
	)
	config := &WorkerConfig{}

	flag.StringVar(&service, "service",
		envOrDefault("SERVICE", ""), "The name of the service this worker executes steps for, e.g. flucoma.")
	flag.StringVar(&config.QueueConfig.Host, "redis_host",
		envOrDefault("REDIS_HOST", "localhost"), "The host of the Redis queue shared with the server.")
	flag.StringVar(&config.QueueConfig.Port, "redis_port",
		envOrDefault("REDIS_PORT", "6379"), "The port of the Redis queue shared with the server.")
	flag.StringVar(&storageRoot, "storage_root",
		envOrDefault("STORAGE_ROOT", defaultStorageRoot), "The path of the storage tree shared with the server.")
	flag.StringVar(&config.ExecutorConfig.ScratchRoot, "scratch_root",
		"", "The path step scratch directories are created under. Defaults to the system temp directory.")
	flag.DurationVar(&config.PollTimeout, "poll_timeout",
		worker.DefaultPollTimeout, "How long each request poll blocks before checking for shutdown.")
	flag.DurationVar(&config.ExecutorConfig.ExecTimeout, "exec_timeout",
		worker.DefaultExecTimeout, "The maximum time a step command may run for.")
	flag.StringVar(&logLevels, "log_levels",
		"", fmt.Sprintf("A comma separated list of name=level pairs where name is the name of the logger and level is one of: %s", logger.ListLogLevels()))
	flag.Parse()

	config.Service = models.ServiceName(service)
	if err := config.Service.Validate(); err != nil {
		return nil, err
	}
	config.StorageRoot = storage.StorageRoot(storageRoot)
	config.LogLevels = logger.LogLevelConfig(logLevels)

	return config, nil
}

// envOrDefault returns the value of the named environment variable, or
// defaultValue if it is unset or empty.
func envOrDefault(name string, defaultValue string) string {
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return value
	}
	return defaultValue
}

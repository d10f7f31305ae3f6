package app

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/queue"
	"github.com/listenup/listenup/common/storage"
	"github.com/listenup/listenup/server/api/rest/server"
	"github.com/listenup/listenup/server/services"
	"github.com/listenup/listenup/server/services/assets"
	"github.com/listenup/listenup/server/store"
)

// LogSafeFlags is a list of flags by name whose values are safe to log.
var LogSafeFlags = []string{
	"api_server_addr",
	"redis_host",
	"redis_port",
	"mongo_database",
	"storage_root",
	"asset_store_type",
	"asset_store_aws_s3_bucket_name",
	"log_levels",
}

type AssetStoreConfig struct {
	// AssetStoreType specifies which asset store should be used.
	AssetStoreType string
	// S3AssetStoreConfig contains configuration for the S3 asset store, if enabled.
	S3AssetStoreConfig assets.S3AssetStoreConfig
}

func AssetStoreFactory(config AssetStoreConfig, root storage.StorageRoot, logFactory logger.LogFactory) (services.AssetStore, error) {
	switch strings.ToLower(config.AssetStoreType) {
	case strings.ToLower(assets.AWSS3AssetStoreType.String()):
		return assets.NewS3AssetStore(config.S3AssetStoreConfig, logFactory)
	case strings.ToLower(assets.LocalAssetStoreType.String()):
		return assets.NewLocalAssetStore(root), nil
	default:
		return nil, fmt.Errorf("error unsupported asset store type: %v", config.AssetStoreType)
	}
}

type ServerConfig struct {
	CoreAPIConfig    server.AppAPIServerConfig
	DatabaseConfig   store.DatabaseConfig
	QueueConfig      queue.QueueConfig
	AssetStoreConfig AssetStoreConfig
	StorageRoot      storage.StorageRoot
	LogLevels        logger.LogLevelConfig
}

// ConfigFromFlags builds the server configuration from command-line flags.
// Connection flags fall back to the environment variables the deployment
// scripts set (MONGO_URI, REDIS_HOST, REDIS_PORT, STORAGE_ROOT) before
// falling back to development defaults.
func ConfigFromFlags() (*ServerConfig, error) {
	var (
		mongoURI      string
		mongoDatabase string
		storageRoot   string
		logLevels     string
	)
	config := &ServerConfig{}

	// API
	flag.StringVar(&config.CoreAPIConfig.Address, "api_server_addr",
		envOrDefault("API_SERVER_ADDR", "0.0.0.0:8000"), "The interface and port to bind the API server to.")

	// Database
	flag.StringVar(&mongoURI, "mongo_uri",
		envOrDefault("MONGO_URI", "mongodb://localhost:27017"), "The MongoDB connection string for the job store.")
	flag.StringVar(&mongoDatabase, "mongo_database",
		envOrDefault("MONGO_DATABASE", "listenup-mongo-db"), "The name of the MongoDB database holding the jobs collection.")

	// Queue
	flag.StringVar(&config.QueueConfig.Host, "redis_host",
		envOrDefault("REDIS_HOST", "localhost"), "The hostname of the Redis instance backing the job queues.")
	flag.StringVar(&config.QueueConfig.Port, "redis_port",
		envOrDefault("REDIS_PORT", "6379"), "The port of the Redis instance backing the job queues.")

	// Storage
	flag.StringVar(&storageRoot, "storage_root",
		envOrDefault("STORAGE_ROOT", defaultStorageRoot), "The root directory of the storage area shared between the server and all workers.")

	// Assets
	flag.StringVar(&config.AssetStoreConfig.AssetStoreType, "asset_store_type",
		assets.LocalAssetStoreType.String(), fmt.Sprintf("The type of asset store to use. Options: %s", strings.Join(assets.AssetStoreTypes(), ", ")))
	flag.StringVar(&config.AssetStoreConfig.S3AssetStoreConfig.BucketName, "asset_store_aws_s3_bucket_name",
		"", "The name of the S3 bucket to store assets to, if using the S3 asset store.")
	flag.StringVar(&config.AssetStoreConfig.S3AssetStoreConfig.Region, "asset_store_aws_s3_region",
		"", "The region of the S3 bucket to store assets to, if using the S3 asset store.")
	flag.StringVar(&config.AssetStoreConfig.S3AssetStoreConfig.AccessKeyID, "asset_store_aws_s3_access_key_id",
		"", "The AWS Access Key ID to use to authenticate to the S3 bucket, if using the S3 asset store.")
	flag.StringVar(&config.AssetStoreConfig.S3AssetStoreConfig.SecretAccessKey, "asset_store_aws_s3_secret_key",
		"", "The AWS Secret Key to use to authenticate to the S3 bucket, if using the S3 asset store.")

	// Misc
	flag.StringVar(&logLevels, "log_levels",
		"", fmt.Sprintf("A comma separated list of name=level pairs where name is the name of the logger and level is one of: %s", logger.ListLogLevels()))
	flag.Parse()

	config.DatabaseConfig.URI = store.MongoURI(mongoURI)
	config.DatabaseConfig.Database = store.MongoDatabaseName(mongoDatabase)
	config.StorageRoot = storage.StorageRoot(storageRoot)
	config.LogLevels = logger.LogLevelConfig(logLevels)

	return config, nil
}

func envOrDefault(name string, defaultValue string) string {
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return value
	}
	return defaultValue
}

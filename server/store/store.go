package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/listenup/listenup/common/gerror"
)

const DefaultDatabaseConnectTimeout = 10 * time.Second

type MongoURI string

func (s MongoURI) String() string {
	return string(s)
}

type MongoDatabaseName string

func (s MongoDatabaseName) String() string {
	return string(s)
}

type DatabaseConfig struct {
	URI            MongoURI
	Database       MongoDatabaseName
	ConnectTimeout time.Duration
}

// DB is a handle to the job database. All job state lives in single documents
// so every write the stores perform is atomic without transactions.
type DB struct {
	*mongo.Database
	client *mongo.Client
}

// NewDatabase connects to MongoDB using the specified DatabaseConfig and pings
// the server to verify the connection, returning a database handle as well as
// a cleanup function to call to disconnect again.
func NewDatabase(ctx context.Context, config DatabaseConfig) (*DB, func(), error) {
	timeout := config.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultDatabaseConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI.String()))
	if err != nil {
		return nil, nil, errors.Wrap(err, "error connecting to database")
	}
	err = client.Ping(connectCtx, readpref.Primary())
	if err != nil {
		disconnectErr := client.Disconnect(connectCtx)
		if disconnectErr != nil {
			return nil, nil, errors.Wrapf(disconnectErr, "error disconnecting from database after failed ping: %s", err)
		}
		return nil, nil, errors.Wrap(err, "error pinging database")
	}
	db := &DB{
		Database: client.Database(config.Database.String()),
		client:   client,
	}
	cleanup := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = db.client.Disconnect(disconnectCtx)
	}
	return db, cleanup, nil
}

// MakeStandardDBError converts well-known driver errors to their gerror
// equivalents and passes everything else through unchanged.
func MakeStandardDBError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return gerror.NewErrDuplicateJob("Job already exists").Wrap(err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return gerror.NewErrNotFound("Not Found").Wrap(err)
	}
	return err
}

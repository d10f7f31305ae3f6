package queue

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
)

const (
	// StatusChannel is the single channel workers publish step status
	// envelopes to and the orchestrator consumes them from.
	StatusChannel = "job_status_events"

	requestChannelSuffix = "_requests"
	connectTimeout       = 10 * time.Second
)

// RequestChannel returns the request queue channel name a worker service
// pops StepExecute envelopes from.
func RequestChannel(service models.ServiceName) string {
	return service.String() + requestChannelSuffix
}

// Queue provides FIFO push and blocking pop of JSON envelopes on named
// channels.
type Queue interface {
	// Push appends the JSON-encoded envelope to the channel.
	Push(ctx context.Context, channel string, envelope interface{}) error
	// BlockingPop waits up to timeout for an envelope on the channel,
	// returning (nil, nil) when the timeout elapses with nothing to pop so
	// callers can loop.
	BlockingPop(ctx context.Context, channel string, timeout time.Duration) ([]byte, error)
}

type QueueConfig struct {
	Host string
	Port string
}

func (c QueueConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// RedisQueue implements Queue over Redis lists: Push is an RPUSH of the
// JSON-encoded envelope and BlockingPop is a BLPOP bounded by the supplied
// timeout. Lists give FIFO delivery per channel.
type RedisQueue struct {
	client *redis.Client
	logger.Log
}

// NewRedisQueue connects to Redis and verifies the connection with a ping.
// The returned cleanup function closes the underlying client.
func NewRedisQueue(ctx context.Context, config QueueConfig, logFactory logger.LogFactory) (*RedisQueue, func(), error) {
	client := redis.NewClient(&redis.Options{Addr: config.Address()})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, errors.Wrapf(err, "error connecting to redis at %s", config.Address())
	}
	q := &RedisQueue{
		client: client,
		Log:    logFactory("RedisQueue"),
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			q.Errorf("Failed to close redis client: %v", err)
		}
	}
	return q, cleanup, nil
}

func (q *RedisQueue) Push(ctx context.Context, channel string, envelope interface{}) error {
	buf, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "error marshalling envelope")
	}
	if err := q.client.RPush(ctx, channel, buf).Err(); err != nil {
		return errors.Wrapf(err, "error pushing envelope to %q", channel)
	}
	q.Tracef("Pushed envelope to %q: %s", channel, buf)
	return nil
}

func (q *RedisQueue) BlockingPop(ctx context.Context, channel string, timeout time.Duration) ([]byte, error) {
	result, err := q.client.BLPop(ctx, timeout, channel).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error popping envelope from %q", channel)
	}
	// result[0] is the channel name, result[1] the payload
	if len(result) < 2 {
		return nil, errors.Errorf("error unexpected BLPOP result length %d from %q", len(result), channel)
	}
	return []byte(result[1]), nil
}

// Package queue connects the ingest surface to the worker through a Redis
// task list, and carries delivery payloads to connected clients through a
// Redis pub/sub channel.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cortex-mentor/cortex/pkg/config"
	"github.com/cortex-mentor/cortex/pkg/errors"
)

// Task names understood by the worker.
const (
	TaskComprehendEvent   = "comprehend_event"
	TaskSynthesizeInsight = "synthesize_insight"
)

// Job is one unit of work on the task list.
type Job struct {
	Task    string          `json:"task"`
	Payload json.RawMessage `json:"payload"`
}

// Queue wraps a Redis connection with the task-list and broadcast operations
// cortexd needs. Safe for concurrent use.
type Queue struct {
	client   *redis.Client
	queueKey string
	channel  string
}

// New connects to Redis per cfg. The connection is verified lazily; use Ping
// for a startup health check.
func New(cfg config.RedisConfig) *Queue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Queue{
		client:   client,
		queueKey: cfg.QueueKey,
		channel:  cfg.Channel,
	}
}

// Ping verifies the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "redis unreachable")
	}
	return nil
}

// Enqueue pushes a job onto the task list for the worker to consume.
func (q *Queue) Enqueue(ctx context.Context, task string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to encode job payload")
	}
	job, err := json.Marshal(Job{Task: task, Payload: raw})
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to encode job")
	}

	if err := q.client.LPush(ctx, q.queueKey, job).Err(); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.ServiceUnavailable, "failed to enqueue job"),
			errors.Fields{"task": task},
		)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. A timeout with no job
// returns (nil, nil) so the worker loop can poll without treating idleness
// as a failure.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, timeout, q.queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to dequeue job")
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, errors.New(errors.InvalidResponse, "unexpected BRPOP reply shape")
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "failed to decode job")
	}
	return &job, nil
}

// Broadcast publishes a delivery payload on the pub/sub channel.
func (q *Queue) Broadcast(ctx context.Context, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to encode broadcast payload")
	}
	if err := q.client.Publish(ctx, q.channel, raw).Err(); err != nil {
		return errors.Wrap(err, errors.ServiceUnavailable, "failed to publish broadcast")
	}
	return nil
}

// Subscribe returns a channel of raw broadcast messages. The channel closes
// when ctx is canceled.
func (q *Queue) Subscribe(ctx context.Context) <-chan []byte {
	sub := q.client.Subscribe(ctx, q.channel)
	out := make(chan []byte)

	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

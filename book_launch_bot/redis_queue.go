package booklaunchbot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// QueueEnvelope wraps a queued message.
type QueueEnvelope[M any] struct {
	ID         string    `json:"id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Message    M         `json:"message"`
}

// RedisQueue is a MessageSink that pushes messages onto a Redis list.
// Messages are consumed oldest first by Drain.
type RedisQueue[M any] struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewRedisQueue[M any](client *redis.Client, key string) *RedisQueue[M] {
	return &RedisQueue[M]{client: client, key: key, now: time.Now}
}

// Send enqueues msg.
func (q *RedisQueue[M]) Send(ctx context.Context, msg M) error {
	envelope := QueueEnvelope[M]{
		ID:         uuid.NewString(),
		EnqueuedAt: q.now().UTC(),
		Message:    msg,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode queued message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", q.key, err)
	}
	pkgLogger.Info("Queued message", "queue", q.key, "id", envelope.ID)
	return nil
}

// Len returns the number of queued messages.
func (q *RedisQueue[M]) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of queue %s: %w", q.key, err)
	}
	return n, nil
}

// Drain pops every queued message and hands it to sink. Each message is
// attempted once: a message the sink rejects is logged and dropped.
// It returns the number of messages delivered.
func (q *RedisQueue[M]) Drain(ctx context.Context, sink MessageSink[M]) (int, error) {
	delivered := 0
	for {
		payload, err := q.client.RPop(ctx, q.key).Bytes()
		if err == redis.Nil {
			return delivered, nil
		}
		if err != nil {
			return delivered, fmt.Errorf("failed to pop from queue %s: %w", q.key, err)
		}

		var envelope QueueEnvelope[M]
		if err := json.Unmarshal(payload, &envelope); err != nil {
			pkgLogger.Error("Dropping undecodable queued message", "queue", q.key, "error", err)
			continue
		}
		if err := sink.Send(ctx, envelope.Message); err != nil {
			pkgLogger.Error("Failed to deliver queued message", "queue", q.key, "id", envelope.ID, "error", err)
			continue
		}
		delivered++
	}
}

package events

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen int64 = 10000

// RedisStreamWriter appends every event to the redis stream named by the topic.
// The client is owned by the caller and is not closed.
type RedisStreamWriter struct {
	client redis.UniversalClient
	maxLen int64
}

func NewRedisStreamWriter(client redis.UniversalClient) *RedisStreamWriter {
	return &RedisStreamWriter{client: client, maxLen: defaultStreamMaxLen}
}

func (r *RedisStreamWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	payload, err := e.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":    e.ID(),
			"type":  e.Type(),
			"event": string(payload),
		},
	}).Err()
}

func (r *RedisStreamWriter) Close(_ context.Context) error {
	return nil
}

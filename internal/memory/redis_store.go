package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with one Redis list per conversation
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxMessages int64
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(redisURL string, ttl time.Duration, maxMessages int) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, maxMessages: int64(maxMessages)}, nil
}

func conversationKey(conversationID string) string {
	return "concierge:conversation:" + conversationID
}

// Append implements Store. Push, trim and expiry run in one MULTI block.
func (r *RedisStore) Append(ctx context.Context, conversationID string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}

	key := conversationKey(conversationID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if r.maxMessages > 0 {
			pipe.LTrim(ctx, key, -r.maxMessages, -1)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save messages to Redis: %w", err)
	}
	return nil
}

// Messages implements Store
func (r *RedisStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	raw, err := r.client.LRange(ctx, conversationKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation from Redis: %w", err)
	}
	return decodeMessages(raw)
}

// Ping verifies the Redis connection is alive
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// decodeMessages skips entries that are not valid messages
func decodeMessages(raw []string) ([]Message, error) {
	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

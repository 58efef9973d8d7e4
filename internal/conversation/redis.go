package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "binanceagent:thread"

// RedisStore keeps each thread as a redis list of JSON encoded turns.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis connection failed")
	}
	return NewRedisStoreFromClient(client, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(threadID int64) string {
	return fmt.Sprintf("%s:%d", s.prefix, threadID)
}

func (s *RedisStore) History(ctx context.Context, threadID int64) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, s.key(threadID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.Wrapf(err, "read thread %d", threadID)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, errors.Wrapf(err, "decode turn in thread %d", threadID)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, threadID int64, turns ...Turn) error {
	if err := validateTurns(turns); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return errors.Wrap(err, "encode turn")
		}
		values = append(values, string(b))
	}
	// A single RPUSH keeps the pair of turns adjacent.
	return errors.Wrapf(s.client.RPush(ctx, s.key(threadID), values...).Err(), "append to thread %d", threadID)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

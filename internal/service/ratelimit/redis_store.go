package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

var _ repository.WindowStore = (*RedisStore)(nil)

// incrementOrReset runs atomically on the server. Times are unix milliseconds.
var incrementOrReset = redis.NewScript(`
local start = redis.call('HGET', KEYS[1], 'start')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if (not start) or (now - tonumber(start) > window) then
  redis.call('HSET', KEYS[1], 'start', now, 'count', 1)
  redis.call('PEXPIRE', KEYS[1], window * 2)
  return {1, now}
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, tonumber(start)}
`)

// RedisStore shares windows across gateway instances.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (models.RateWindow, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "start", "count").Result()
	if err != nil {
		return models.RateWindow{}, false, fmt.Errorf("hmget: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return models.RateWindow{}, false, nil
	}

	start, err := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
	if err != nil {
		return models.RateWindow{}, false, fmt.Errorf("parse start: %w", err)
	}
	count, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return models.RateWindow{}, false, fmt.Errorf("parse count: %w", err)
	}
	return models.RateWindow{Count: count, Start: time.UnixMilli(start)}, true, nil
}

func (s *RedisStore) IncrementOrReset(ctx context.Context, key string, now time.Time, window time.Duration) (models.RateWindow, error) {
	res, err := incrementOrReset.Run(ctx, s.client, []string{s.key(key)}, now.UnixMilli(), window.Milliseconds()).Int64Slice()
	if err != nil {
		return models.RateWindow{}, fmt.Errorf("increment window: %w", err)
	}
	if len(res) != 2 {
		return models.RateWindow{}, errors.New("increment window: unexpected script result")
	}
	return models.RateWindow{Count: res[0], Start: time.UnixMilli(res[1])}, nil
}

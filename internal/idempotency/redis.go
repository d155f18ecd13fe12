// Package idempotency guards checkout submissions against double charges.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StateInFlight = "in_flight"
	StateDone     = "done"
)

// Entry is what is stored under a key.
type Entry struct {
	State    string          `json:"state"`
	Response json.RawMessage `json:"response,omitempty"`
}

type Store interface {
	// Reserve claims key. When the key is already held it returns the
	// existing entry and false.
	Reserve(ctx context.Context, key string) (*Entry, bool, error)
	Complete(ctx context.Context, key string, response []byte) error
	Release(ctx context.Context, key string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func cacheKey(key string) string { return "idem:checkout:" + key }

func (s *RedisStore) Reserve(ctx context.Context, key string) (*Entry, bool, error) {
	inflight, _ := json.Marshal(Entry{State: StateInFlight})
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, cacheKey(key), inflight, s.ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("redis setnx failed: %w", err)
		}
		if ok {
			return nil, true, nil
		}
		data, err := s.client.Get(ctx, cacheKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between the two calls
		}
		if err != nil {
			return nil, false, fmt.Errorf("redis get failed: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, false, fmt.Errorf("unmarshal entry failed: %w", err)
		}
		return &e, false, nil
	}
	return nil, false, errors.New("idempotency key flapping")
}

func (s *RedisStore) Complete(ctx context.Context, key string, response []byte) error {
	data, err := json.Marshal(Entry{State: StateDone, Response: response})
	if err != nil {
		return fmt.Errorf("marshal entry failed: %w", err)
	}
	if err := s.client.Set(ctx, cacheKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

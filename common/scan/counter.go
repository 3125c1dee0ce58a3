package scan

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vaultiq/mediavault/common/clock"
)

//go:embed failure_counter.lua
var failureCounterScript string

// CounterStore is the shared failure counter behind the circuit breaker.
// Kept out of the coordinator's own state so tests can substitute an
// in-memory map and production a shared cache.
type CounterStore interface {
	// Increment bumps the counter and arms the decay window on first
	// failure. Returns the value after the increment.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Forget(ctx context.Context, key string) error
}

// RedisCounterStore backs the counter with Redis, sharing breaker state
// across workers. The increment runs as a Lua script so the INCR and the
// EXPIRE are atomic.
type RedisCounterStore struct {
	redis  *redis.Client
	script *redis.Script
}

// NewRedisCounterStore creates a Redis-backed counter store
func NewRedisCounterStore(redisClient *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{
		redis:  redisClient,
		script: redis.NewScript(failureCounterScript),
	}
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	result, err := s.script.Run(ctx, s.redis, []string{key}, int64(window.Seconds())).Result()
	if err != nil {
		return 0, fmt.Errorf("failure counter increment: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}
	return count, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	count, err := s.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failure counter get: %w", err)
	}
	return count, nil
}

func (s *RedisCounterStore) Forget(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failure counter forget: %w", err)
	}
	return nil
}

type memoryCounter struct {
	count    int64
	deadline time.Time
}

// MemoryCounterStore is an in-process counter store for tests and
// single-node deployments. It mirrors the Redis semantics: the decay
// window is armed on the first failure and does not slide on later ones,
// so the breaker still heals under a steady failure trickle.
type MemoryCounterStore struct {
	clock    clock.Clock
	mu       sync.Mutex
	counters map[string]*memoryCounter
}

// NewMemoryCounterStore creates an in-memory counter store
func NewMemoryCounterStore(clk clock.Clock) *MemoryCounterStore {
	return &MemoryCounterStore{
		clock:    clk,
		counters: make(map[string]*memoryCounter),
	}
}

func (s *MemoryCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.deadline) {
		c = &memoryCounter{deadline: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

func (s *MemoryCounterStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if !s.clock.Now().Before(c.deadline) {
		delete(s.counters, key)
		return 0, nil
	}
	return c.count, nil
}

func (s *MemoryCounterStore) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

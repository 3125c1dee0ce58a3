package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vaultiq/mediavault/common/logger"
	rediscommon "github.com/vaultiq/mediavault/common/redis"
)

// Job is one unit of deferred work.
type Job struct {
	Type    string          `json:"type"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

// NewJob marshals a payload into a job envelope.
func NewJob(jobType, key string, payload interface{}) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return &Job{Type: jobType, Key: key, Payload: data}, nil
}

// Dispatcher schedules jobs onto a stream, optionally delayed. Used for
// conversion generation and deferred cleanup dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, stream string, job *Job, delay time.Duration) error
}

// RedisDispatcher publishes jobs to Redis streams. Delayed jobs park in a
// sorted set keyed by release time; workers promote due members back onto
// the stream via PromoteDue.
type RedisDispatcher struct {
	redis *rediscommon.Client
	log   *logger.Logger
}

// NewRedisDispatcher creates a stream-backed dispatcher
func NewRedisDispatcher(redis *rediscommon.Client, log *logger.Logger) *RedisDispatcher {
	return &RedisDispatcher{redis: redis, log: log}
}

func delayedKey(stream string) string { return stream + ":delayed" }

// Dispatch publishes the job, honoring the delay.
func (d *RedisDispatcher) Dispatch(ctx context.Context, stream string, job *Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if delay > 0 {
		release := float64(time.Now().Add(delay).UnixMilli())
		if err := d.redis.AddToDelayedSet(ctx, delayedKey(stream), release, string(data)); err != nil {
			return err
		}
		d.log.Debug("job delayed", "stream", stream, "type", job.Type, "key", job.Key, "delay", delay)
		return nil
	}

	if _, err := d.redis.AddToStream(ctx, stream, map[string]interface{}{"job": string(data)}); err != nil {
		return err
	}

	d.log.Debug("job dispatched", "stream", stream, "type", job.Type, "key", job.Key, "attempt", job.Attempt)
	return nil
}

// PromoteDue moves jobs whose delay has elapsed onto the stream.
// Worker loops call this on every poll.
func (d *RedisDispatcher) PromoteDue(ctx context.Context, stream string, batch int) (int, error) {
	due, err := d.redis.PopDueFromDelayedSet(ctx, delayedKey(stream), float64(time.Now().UnixMilli()), batch)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, raw := range due {
		if _, err := d.redis.AddToStream(ctx, stream, map[string]interface{}{"job": raw}); err != nil {
			d.log.Error("failed to promote delayed job", "stream", stream, "error", err)
			continue
		}
		promoted++
	}
	return promoted, nil
}

// MemoryDispatcher is an in-memory dispatcher for tests. Delays are
// recorded, not waited on; tests drain jobs explicitly.
type MemoryDispatcher struct {
	mu   sync.Mutex
	jobs map[string][]DispatchedJob
}

// DispatchedJob is a job captured by the memory dispatcher.
type DispatchedJob struct {
	Job   *Job
	Delay time.Duration
}

// NewMemoryDispatcher creates an in-memory dispatcher
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{jobs: make(map[string][]DispatchedJob)}
}

func (d *MemoryDispatcher) Dispatch(ctx context.Context, stream string, job *Job, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs[stream] = append(d.jobs[stream], DispatchedJob{Job: job, Delay: delay})
	return nil
}

// Drain returns and clears everything dispatched to a stream.
func (d *MemoryDispatcher) Drain(stream string) []DispatchedJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	jobs := d.jobs[stream]
	d.jobs[stream] = nil
	return jobs
}

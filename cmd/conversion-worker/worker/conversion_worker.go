package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/metrics"
	"github.com/vaultiq/mediavault/common/queue"
	rediscommon "github.com/vaultiq/mediavault/common/redis"
	"github.com/vaultiq/mediavault/common/storage"
	commonworker "github.com/vaultiq/mediavault/common/worker"
)

// ConversionWorker consumes rendition jobs from the conversion stream,
// generates the scaled image, and signals completion to the cleanup worker.
// A failed attempt re-dispatches with growing backoff; once the attempt
// budget is exhausted it signals a terminal failure so the cleanup state
// for the media can be force-flushed instead of waiting forever.
type ConversionWorker struct {
	redis      *rediscommon.Client
	dispatcher *queue.RedisDispatcher
	disks      *storage.Registry
	log        *logger.Logger

	maxAttempts int
	baseBackoff time.Duration

	group    string
	consumer string
}

// ConversionWorkerOpts contains options for creating a ConversionWorker
type ConversionWorkerOpts struct {
	Redis       *redis.Client
	Disks       *storage.Registry
	Logger      *logger.Logger
	MaxAttempts int
	BaseBackoff time.Duration
}

// NewConversionWorker creates a new conversion worker
func NewConversionWorker(opts *ConversionWorkerOpts) *ConversionWorker {
	wrapped := rediscommon.NewClient(opts.Redis, opts.Logger)
	return &ConversionWorker{
		redis:       wrapped,
		dispatcher:  queue.NewRedisDispatcher(wrapped, opts.Logger),
		disks:       opts.Disks,
		log:         opts.Logger,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
		group:       "conversion_workers",
		consumer:    fmt.Sprintf("conversion_worker_%s", uuid.New().String()[:8]),
	}
}

// Start begins processing conversion jobs until the context is cancelled.
func (w *ConversionWorker) Start(ctx context.Context) error {
	w.log.Info("starting conversion worker",
		"stream", queue.ConversionJobsStream,
		"consumer", w.consumer)

	if err := w.redis.CreateStreamGroup(ctx, queue.ConversionJobsStream, w.group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("conversion worker stopping")
			return nil
		default:
			// Move any delayed retries whose backoff elapsed back
			// onto the stream before reading.
			if _, err := w.dispatcher.PromoteDue(ctx, queue.ConversionJobsStream, 100); err != nil {
				w.log.Error("failed to promote delayed jobs", "error", err)
			}

			if err := w.processNext(ctx); err != nil {
				w.log.Error("failed to process conversion job", "error", err)
				time.Sleep(1 * time.Second) // Back off on error
			}
		}
	}
}

func (w *ConversionWorker) processNext(ctx context.Context) error {
	streams, err := w.redis.ReadFromStreamGroup(ctx, w.group, w.consumer, queue.ConversionJobsStream, 1, 5*time.Second)
	if err != nil {
		return fmt.Errorf("XREADGROUP error: %w", err)
	}
	if streams == nil {
		// Timeout, no messages
		return nil
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := w.handleMessage(ctx, message); err != nil {
				w.log.Error("failed to handle conversion message", "message_id", message.ID, "error", err)
			}

			if err := w.redis.AckStreamMessage(ctx, queue.ConversionJobsStream, w.group, message.ID); err != nil {
				w.log.Error("failed to ACK conversion message", "message_id", message.ID, "error", err)
			}
		}
	}
	return nil
}

func (w *ConversionWorker) handleMessage(ctx context.Context, message redis.XMessage) error {
	raw, ok := message.Values["job"].(string)
	if !ok {
		return fmt.Errorf("message %s has no job field", message.ID)
	}

	var job queue.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}

	var payload queue.ConversionJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal conversion payload: %w", err)
	}

	log := w.log.WithMediaID(payload.MediaID.String())

	if err := w.convert(ctx, &payload); err != nil {
		return w.handleFailure(ctx, &job, &payload, err)
	}

	metrics.ConversionsTotal.WithLabelValues("completed").Inc()
	log.Info("conversion completed", "conversion", payload.Conversion.Name, "attempt", job.Attempt)

	return commonworker.SignalConversion(ctx, w.redis, &commonworker.ConversionSignal{
		MediaID:    payload.MediaID.String(),
		Conversion: payload.Conversion.Name,
		Status:     commonworker.StatusCompleted,
	})
}

func (w *ConversionWorker) convert(ctx context.Context, payload *queue.ConversionJobPayload) error {
	disk, err := w.disks.Get(payload.Disk)
	if err != nil {
		return err
	}

	src, err := disk.Open(ctx, payload.SourceKey)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	rendition, err := renderConversion(src, payload.Conversion)
	if err != nil {
		return err
	}

	if err := disk.Put(ctx, payload.TargetKey, rendition); err != nil {
		return fmt.Errorf("write rendition: %w", err)
	}
	return nil
}

// handleFailure re-dispatches the job with backoff, or signals a terminal
// failure once the attempt budget is spent.
func (w *ConversionWorker) handleFailure(ctx context.Context, job *queue.Job, payload *queue.ConversionJobPayload, cause error) error {
	attempt := job.Attempt + 1
	log := w.log.WithMediaID(payload.MediaID.String())

	if attempt < w.maxAttempts {
		job.Attempt = attempt
		delay := w.baseBackoff * time.Duration(1<<(attempt-1))

		log.Warn("conversion failed, retrying",
			"conversion", payload.Conversion.Name,
			"attempt", attempt,
			"retry_in", delay,
			"error", cause)

		metrics.ConversionsTotal.WithLabelValues("retried").Inc()
		return w.dispatcher.Dispatch(ctx, queue.ConversionJobsStream, job, delay)
	}

	log.Error("conversion failed permanently",
		"conversion", payload.Conversion.Name,
		"attempts", attempt,
		"error", cause)
	metrics.ConversionsTotal.WithLabelValues("failed").Inc()

	return commonworker.SignalConversion(ctx, w.redis, &commonworker.ConversionSignal{
		MediaID:    payload.MediaID.String(),
		Conversion: payload.Conversion.Name,
		Status:     commonworker.StatusFailed,
		Error:      cause.Error(),
	})
}

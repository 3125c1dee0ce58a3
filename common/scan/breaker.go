package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultiq/mediavault/common/logger"
)

// Breaker is the failure-counting guard in front of the scan engine.
// It opens once the counter reaches the threshold inside the decay window
// and heals only when the window elapses: a single successful scan does
// not clear it, which avoids flapping against a half-dead dependency.
type Breaker struct {
	counters  CounterStore
	threshold int64
	window    time.Duration
	log       *logger.Logger
}

// NewBreaker creates a circuit breaker over the given counter store
func NewBreaker(counters CounterStore, threshold int64, window time.Duration, log *logger.Logger) *Breaker {
	return &Breaker{
		counters:  counters,
		threshold: threshold,
		window:    window,
		log:       log,
	}
}

func counterKey(scannerID string) string {
	return fmt.Sprintf("scan:failures:%s", scannerID)
}

// Allow returns an UnavailableError when the breaker is open for the
// given scanner, without touching the engine.
func (b *Breaker) Allow(ctx context.Context, scannerID string) error {
	count, err := b.counters.Get(ctx, counterKey(scannerID))
	if err != nil {
		// A broken counter store must not take uploads down with it
		b.log.Warn("breaker counter read failed, allowing call", "scanner", scannerID, "error", err)
		return nil
	}

	if count >= b.threshold {
		b.log.Warn("circuit open, shedding scan call", "scanner", scannerID, "failures", count)
		return &UnavailableError{ScannerID: scannerID, Failures: count}
	}
	return nil
}

// MarkFailure increments the scanner's failure counter and returns the
// new count.
func (b *Breaker) MarkFailure(ctx context.Context, scannerID string) int64 {
	count, err := b.counters.Increment(ctx, counterKey(scannerID), b.window)
	if err != nil {
		b.log.Warn("breaker counter increment failed", "scanner", scannerID, "error", err)
		return 0
	}

	if count == b.threshold {
		b.log.Error("circuit breaker opened", "scanner", scannerID, "failures", count, "window", b.window)
	}
	return count
}

// Reset clears the scanner's failure counter. Used by operator tooling,
// never by a successful scan.
func (b *Breaker) Reset(ctx context.Context, scannerID string) error {
	return b.counters.Forget(ctx, counterKey(scannerID))
}

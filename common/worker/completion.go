package worker

import (
	"context"
	"encoding/json"
	"fmt"

	rediscommon "github.com/vaultiq/mediavault/common/redis"
)

// ConversionSignalsList is the list conversion workers push completion
// signals onto and the cleanup worker pops from.
const ConversionSignalsList = "media.conversions.done"

// SignalStatus is the terminal state of one conversion attempt.
type SignalStatus string

const (
	StatusCompleted SignalStatus = "completed"
	StatusFailed    SignalStatus = "failed"
)

// ConversionSignal tells the cleanup scheduler that one expected rendition
// finished (or permanently failed and will never finish).
type ConversionSignal struct {
	MediaID    string       `json:"media_id"`
	Conversion string       `json:"conversion"`
	Status     SignalStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}

// Validate checks if all required fields are present
func (s *ConversionSignal) Validate() error {
	if s.MediaID == "" {
		return fmt.Errorf("media ID is required")
	}
	if s.Conversion == "" {
		return fmt.Errorf("conversion name is required")
	}
	if s.Status != StatusCompleted && s.Status != StatusFailed {
		return fmt.Errorf("status must be 'completed' or 'failed', got: %s", s.Status)
	}
	if s.Status == StatusFailed && s.Error == "" {
		return fmt.Errorf("error detail is required for failed status")
	}
	return nil
}

// SignalConversion pushes a conversion completion signal for the cleanup
// worker to consume.
func SignalConversion(ctx context.Context, redis *rediscommon.Client, signal *ConversionSignal) error {
	if err := signal.Validate(); err != nil {
		return fmt.Errorf("invalid conversion signal: %w", err)
	}

	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	if err := redis.PushToList(ctx, ConversionSignalsList, string(data)); err != nil {
		return fmt.Errorf("failed to push conversion signal: %w", err)
	}

	return nil
}

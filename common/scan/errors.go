package scan

import (
	"errors"
	"fmt"
)

// Reason is a stable failure code attached to every engine failure.
type Reason string

const (
	// Infra reasons: transient, retryable
	ReasonTimeout           Reason = "timeout"
	ReasonUnreachable       Reason = "unreachable"
	ReasonConnectionRefused Reason = "connection_refused"
	ReasonProcessTimeout    Reason = "process_timeout"

	// Config reasons: non-retryable, operator-facing
	ReasonBinaryMissing  Reason = "binary_missing"
	ReasonRulesetInvalid Reason = "ruleset_invalid"
	ReasonRulesetMissing Reason = "ruleset_missing"
	ReasonBuildFailed    Reason = "build_failed"
)

var infraReasons = map[Reason]bool{
	ReasonTimeout:           true,
	ReasonUnreachable:       true,
	ReasonConnectionRefused: true,
	ReasonProcessTimeout:    true,
}

var configReasons = map[Reason]bool{
	ReasonBinaryMissing:  true,
	ReasonRulesetInvalid: true,
	ReasonRulesetMissing: true,
	ReasonBuildFailed:    true,
}

// ValidationError is user-correctable bad input (size, type, dimensions).
// Surfaces as a 4xx-equivalent with a stable code and no internal detail.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Detail)
}

// InfraError is a transient engine failure. The upload job retries it
// with backoff; every occurrence counts toward the circuit breaker.
type InfraError struct {
	ScannerID string
	Reason    Reason
	Err       error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("scanner %s infra failure (%s): %v", e.ScannerID, e.Reason, e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }

// ConfigError is a non-retryable engine misconfiguration. It counts toward
// the breaker and signals the operator, never the end user.
type ConfigError struct {
	ScannerID string
	Reason    Reason
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scanner %s config failure (%s): %v", e.ScannerID, e.Reason, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Rejection is a genuine malicious-content verdict. Always terminal and
// user-facing; never routed through the breaker.
type Rejection struct {
	ScannerID string
	Signature string
}

func (e *Rejection) Error() string {
	return fmt.Sprintf("content rejected by %s", e.ScannerID)
}

// UnavailableError is raised by AssertAvailable while the breaker is open.
type UnavailableError struct {
	ScannerID string
	Failures  int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("scanner %s unavailable after %d failures", e.ScannerID, e.Failures)
}

// ClassifyReason wraps an engine failure into exactly one error class
// based on its reason code. Unknown reasons default to infra so they stay
// retryable rather than silently permanent.
func ClassifyReason(scannerID string, reason Reason, err error) error {
	switch {
	case configReasons[reason]:
		return &ConfigError{ScannerID: scannerID, Reason: reason, Err: err}
	case infraReasons[reason]:
		return &InfraError{ScannerID: scannerID, Reason: reason, Err: err}
	default:
		return &InfraError{ScannerID: scannerID, Reason: reason, Err: err}
	}
}

// Retryable reports whether the upload job should retry after err.
func Retryable(err error) bool {
	var infra *InfraError
	return errors.As(err, &infra)
}

// CountsTowardBreaker reports whether err increments the failure counter.
// Content rejections never do.
func CountsTowardBreaker(err error) bool {
	var infra *InfraError
	var cfg *ConfigError
	return errors.As(err, &infra) || errors.As(err, &cfg)
}

package scan

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/vaultiq/mediavault/common/logger"
	"github.com/vaultiq/mediavault/common/metrics"
	"github.com/vaultiq/mediavault/common/models"
	"github.com/vaultiq/mediavault/common/quarantine"
)

// Coordinator runs the full validation pipeline against a staged upload:
// structural validation, heuristic byte patterns, then the external
// engine, with the circuit breaker guarding the engine call.
type Coordinator struct {
	store     *quarantine.Store
	validator *Validator
	heuristic *Heuristic
	engine    Engine
	breaker   *Breaker
	log       *logger.Logger
}

// CoordinatorOpts contains options for creating a Coordinator
type CoordinatorOpts struct {
	Store     *quarantine.Store
	Validator *Validator
	Heuristic *Heuristic
	Engine    Engine
	Breaker   *Breaker
	Logger    *logger.Logger
}

// NewCoordinator creates a scan coordinator
func NewCoordinator(opts *CoordinatorOpts) *Coordinator {
	return &Coordinator{
		store:     opts.Store,
		validator: opts.Validator,
		heuristic: opts.Heuristic,
		engine:    opts.Engine,
		breaker:   opts.Breaker,
		log:       opts.Logger,
	}
}

// AssertAvailable raises without invoking the engine while the breaker
// is open for it.
func (c *Coordinator) AssertAvailable(ctx context.Context) error {
	return c.breaker.Allow(ctx, c.engine.ID())
}

// Scan validates the staged upload identified by token. On success the
// quarantine record is CLEAN; a content problem leaves it INFECTED or
// FAILED and returns the corresponding terminal error; an engine problem
// returns a classified infra/config error with the record still SCANNING
// so a retry can resume.
func (c *Coordinator) Scan(ctx context.Context, token uuid.UUID, declared Declared) error {
	record, err := c.store.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("load quarantine record: %w", err)
	}

	// A retry after an infra failure re-enters with the record already
	// SCANNING; only transition out of PENDING.
	if record.State == models.QuarantinePending {
		if _, err := c.store.UpdateState(ctx, token, models.QuarantineScanning); err != nil {
			return fmt.Errorf("mark scanning: %w", err)
		}
	}

	if err := c.structural(ctx, token, declared); err != nil {
		c.markTerminal(ctx, token, models.QuarantineFailed)
		metrics.ScansTotal.WithLabelValues("validation_failed").Inc()
		return err
	}

	if err := c.heuristics(ctx, token); err != nil {
		c.markTerminal(ctx, token, models.QuarantineInfected)
		metrics.ScansTotal.WithLabelValues("rejected").Inc()
		return err
	}

	if err := c.runEngine(ctx, token); err != nil {
		if _, rejected := err.(*Rejection); rejected {
			c.markTerminal(ctx, token, models.QuarantineInfected)
			metrics.ScansTotal.WithLabelValues("rejected").Inc()
			return err
		}

		// Infra and config failures feed the breaker; a rejection above
		// never does.
		if CountsTowardBreaker(err) {
			c.breaker.MarkFailure(ctx, c.engine.ID())
			metrics.BreakerFailures.WithLabelValues(c.engine.ID()).Inc()
		}
		metrics.ScansTotal.WithLabelValues("engine_error").Inc()
		return err
	}

	if _, err := c.store.UpdateState(ctx, token, models.QuarantineClean); err != nil {
		return fmt.Errorf("mark clean: %w", err)
	}

	metrics.ScansTotal.WithLabelValues("clean").Inc()
	c.log.Info("scan passed", "token", token, "scanner", c.engine.ID())
	return nil
}

func (c *Coordinator) structural(ctx context.Context, token uuid.UUID, declared Declared) error {
	rc, err := c.store.Open(ctx, token)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer rc.Close()

	return c.validator.Validate(rc, declared)
}

func (c *Coordinator) heuristics(ctx context.Context, token uuid.UUID) error {
	rc, err := c.store.Open(ctx, token)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer rc.Close()

	head := make([]byte, c.heuristic.ScanSize())
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("read staged head: %w", err)
	}

	return c.heuristic.Check(head[:n])
}

func (c *Coordinator) runEngine(ctx context.Context, token uuid.UUID) error {
	if err := c.AssertAvailable(ctx); err != nil {
		return err
	}

	rc, err := c.store.Open(ctx, token)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer rc.Close()

	result, err := c.engine.Scan(ctx, rc)
	if err != nil {
		return err
	}

	if result.Verdict == VerdictInfected {
		return &Rejection{ScannerID: result.ScannerID, Signature: result.Signature}
	}
	return nil
}

// markTerminal moves the record into a terminal state, best effort.
func (c *Coordinator) markTerminal(ctx context.Context, token uuid.UUID, state models.QuarantineState) {
	if _, err := c.store.UpdateState(ctx, token, state); err != nil {
		c.log.Warn("terminal state transition failed", "token", token, "state", state, "error", err)
	}
}

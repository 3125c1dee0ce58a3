package scan

import (
	"context"
	"io"
)

// Verdict is the outcome of one engine scan attempt.
type Verdict string

const (
	VerdictClean    Verdict = "clean"
	VerdictInfected Verdict = "infected"
	VerdictError    Verdict = "error"
)

// Result is the ephemeral outcome of a single scan attempt. Never
// persisted beyond logging.
type Result struct {
	Verdict   Verdict
	Signature string
	ScannerID string
}

// Engine is an external antivirus/heuristic scan engine. Scan streams the
// staged content and returns a verdict; failures must carry a Reason via
// ClassifyReason so callers can route them (retry, operator alert, or
// user rejection).
type Engine interface {
	ID() string
	Scan(ctx context.Context, r io.Reader) (*Result, error)
}

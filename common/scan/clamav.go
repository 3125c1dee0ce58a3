package scan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/vaultiq/mediavault/common/logger"
)

// ClamAVEngine invokes the clamscan binary over stdin with a hard timeout.
// Exit code 0 means clean, 1 means infected, anything else is an engine
// failure that gets classified by its output.
type ClamAVEngine struct {
	binary  string
	timeout time.Duration
	log     *logger.Logger
}

// NewClamAVEngine creates a clamscan-backed engine
func NewClamAVEngine(binary string, timeout time.Duration, log *logger.Logger) *ClamAVEngine {
	return &ClamAVEngine{
		binary:  binary,
		timeout: timeout,
		log:     log,
	}
}

func (e *ClamAVEngine) ID() string { return "clamav" }

// Scan pipes the content through clamscan.
func (e *ClamAVEngine) Scan(ctx context.Context, r io.Reader) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary, "--no-summary", "--stdout", "-")
	cmd.Stdin = r

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// The hard timeout converts to a classified infra failure instead of
	// hanging the request.
	if ctx.Err() == context.DeadlineExceeded {
		return nil, ClassifyReason(e.ID(), ReasonProcessTimeout, ctx.Err())
	}

	if err == nil {
		return &Result{Verdict: VerdictClean, ScannerID: e.ID()}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 1:
			signature := parseSignature(stdout.String())
			e.log.Warn("scan engine flagged content", "scanner", e.ID(), "signature", signature)
			return &Result{Verdict: VerdictInfected, Signature: signature, ScannerID: e.ID()}, nil
		default:
			return nil, ClassifyReason(e.ID(), classifyOutput(stderr.String()+stdout.String()), err)
		}
	}

	if errors.Is(err, exec.ErrNotFound) {
		return nil, ClassifyReason(e.ID(), ReasonBinaryMissing, err)
	}

	return nil, ClassifyReason(e.ID(), ReasonUnreachable, err)
}

// parseSignature extracts the signature name from a clamscan line like
// "stream: Eicar-Test-Signature FOUND".
func parseSignature(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "FOUND") {
			continue
		}
		if idx := strings.Index(line, ": "); idx >= 0 {
			return strings.TrimSuffix(line[idx+2:], " FOUND")
		}
	}
	return "unknown"
}

// classifyOutput maps engine output to a stable reason code.
func classifyOutput(out string) Reason {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "connection refused"):
		return ReasonConnectionRefused
	case strings.Contains(lower, "no such file") && strings.Contains(lower, "database"),
		strings.Contains(lower, "can't open file or directory"):
		return ReasonRulesetMissing
	case strings.Contains(lower, "malformed database"),
		strings.Contains(lower, "can't load"),
		strings.Contains(lower, "cvd"):
		return ReasonRulesetInvalid
	case strings.Contains(lower, "build"):
		return ReasonBuildFailed
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"):
		return ReasonTimeout
	default:
		return ReasonUnreachable
	}
}

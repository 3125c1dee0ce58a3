package scan

import (
	"fmt"
	"regexp"
)

// Default byte patterns flagged in uploads. Code-execution primitives,
// PHP-style open tags, and base64-wrapped payload markers have no business
// inside image files.
var DefaultSuspiciousPatterns = []string{
	`(?i)<\?php`,
	`<\?=`,
	`(?i)<script[\s>]`,
	`(?i)\beval\s*\(`,
	`(?i)\bsystem\s*\(`,
	`(?i)\bpassthru\s*\(`,
	`(?i)\bshell_exec\s*\(`,
	`base64_decode\s*\(`,
	`(?i)data:text/html;base64,`,
}

// Heuristic runs configurable byte-pattern rules over the head of a
// staged file.
type Heuristic struct {
	id       string
	scanSize int
	patterns []*regexp.Regexp
}

// NewHeuristic compiles the given pattern list. The scanner inspects at
// most scanSize leading bytes.
func NewHeuristic(scanSize int, patterns []string) (*Heuristic, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile heuristic pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &Heuristic{
		id:       "heuristic",
		scanSize: scanSize,
		patterns: compiled,
	}, nil
}

// ScanSize returns how many leading bytes the scanner wants to see.
func (h *Heuristic) ScanSize() int { return h.scanSize }

// Check matches the head bytes against every pattern. A match is a
// content rejection, not an engine failure.
func (h *Heuristic) Check(head []byte) error {
	if len(head) > h.scanSize {
		head = head[:h.scanSize]
	}

	for _, re := range h.patterns {
		if re.Match(head) {
			return &Rejection{ScannerID: h.id, Signature: re.String()}
		}
	}
	return nil
}

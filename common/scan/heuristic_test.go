package scan

import (
	"errors"
	"strings"
	"testing"
)

func TestHeuristic_RejectsEmbeddedCode(t *testing.T) {
	h, err := NewHeuristic(4096, DefaultSuspiciousPatterns)
	if err != nil {
		t.Fatalf("NewHeuristic failed: %v", err)
	}

	cases := [][]byte{
		[]byte("GIF89a ... <?php system($_GET['c']); ?>"),
		[]byte("<?PHP echo 1;"),
		[]byte("<?= $x ?>"),
		[]byte(`<script src="x.js">`),
		[]byte("prefix eval (payload)"),
		[]byte("base64_decode($blob)"),
		[]byte("data:text/HTML;base64,PHNjcmlwdD4="),
	}
	for _, head := range cases {
		err := h.Check(head)
		var rejection *Rejection
		if !errors.As(err, &rejection) {
			t.Errorf("expected Rejection for %q, got %v", head, err)
		}
	}
}

func TestHeuristic_PassesBinaryImageData(t *testing.T) {
	h, err := NewHeuristic(4096, DefaultSuspiciousPatterns)
	if err != nil {
		t.Fatalf("NewHeuristic failed: %v", err)
	}

	head := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("JFIF ordinary jpeg bytes evaluation")...)
	if err := h.Check(head); err != nil {
		t.Errorf("clean image head must pass: %v", err)
	}
}

func TestHeuristic_HonorsScanSize(t *testing.T) {
	h, err := NewHeuristic(8, DefaultSuspiciousPatterns)
	if err != nil {
		t.Fatalf("NewHeuristic failed: %v", err)
	}

	// The marker sits beyond the configured window
	head := []byte(strings.Repeat("A", 16) + "<?php ")
	if err := h.Check(head); err != nil {
		t.Errorf("bytes beyond the scan window must be ignored: %v", err)
	}
}

func TestNewHeuristic_InvalidPattern(t *testing.T) {
	if _, err := NewHeuristic(1024, []string{"("}); err == nil {
		t.Error("invalid pattern must fail compilation")
	}
}

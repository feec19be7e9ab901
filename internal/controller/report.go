package controller

import (
	"fmt"

	"scriptforge/internal/sandbox"
)

// DefaultReportTailBytes bounds each output channel in a failure report.
// Revisions only ever see the most recent failure, and only its tail; full
// logs stay in the session record.
const DefaultReportTailBytes = 4096

// FailureReport is what the producer sees when asked to revise a failed
// script: the exit code plus bounded tails of both output channels.
type FailureReport struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// String renders the report for embedding in a revision prompt.
func (r FailureReport) String() string {
	return fmt.Sprintf("exit code: %d\n--- stdout (tail) ---\n%s\n--- stderr (tail) ---\n%s",
		r.ExitCode, r.Stdout, r.Stderr)
}

// newFailureReport extracts a report from a script-failure outcome,
// truncating each channel to the last tailBytes bytes.
func newFailureReport(outcome sandbox.Outcome, tailBytes int) FailureReport {
	if tailBytes <= 0 {
		tailBytes = DefaultReportTailBytes
	}
	return FailureReport{
		ExitCode: outcome.ExitCode,
		Stdout:   tail(outcome.Stdout, tailBytes),
		Stderr:   tail(outcome.Stderr, tailBytes),
	}
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Package sandbox executes candidate installation scripts inside disposable
// Docker containers and reports structured outcomes. Every validation starts
// from a clean base image; nothing survives between attempts.
package sandbox

import "time"

// Status classifies the result of one validation run.
type Status int

const (
	// StatusPassed means the script ran and exited zero.
	StatusPassed Status = iota

	// StatusScriptFailed means the script ran and exited nonzero, or hung
	// past the execution deadline. Recoverable by revising the script.
	StatusScriptFailed

	// StatusSandboxFailed means the execution environment itself could not
	// be provisioned or operated. Not a script defect; never recoverable
	// by revision.
	StatusSandboxFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusScriptFailed:
		return "script_failed"
	case StatusSandboxFailed:
		return "sandbox_failed"
	default:
		return "unknown"
	}
}

// ExitCodeTimeout is the synthetic exit code reported when a script exceeds
// the execution deadline. Matches the coreutils timeout(1) convention.
const ExitCodeTimeout = 124

// Outcome is the structured result of validating one script.
//
// For StatusPassed and StatusScriptFailed the script actually ran and
// ExitCode/Stdout/Stderr are populated. For StatusSandboxFailed only Reason
// is meaningful.
type Outcome struct {
	Status Status

	// ExitCode is the script's exit code. ExitCodeTimeout when the script
	// was killed for exceeding the execution deadline.
	ExitCode int

	// Stdout and Stderr are the script's output channels, captured
	// separately and in full (up to the configured capture cap).
	Stdout string
	Stderr string

	// Truncated is set when output exceeded the capture cap.
	Truncated bool

	// Reason describes an infrastructure failure (StatusSandboxFailed).
	Reason string

	// Duration is how long the script ran.
	Duration time.Duration
}

// Passed reports whether the script exited zero.
func (o Outcome) Passed() bool { return o.Status == StatusPassed }

// passedOutcome builds a success outcome.
func passedOutcome(stdout, stderr string, truncated bool, d time.Duration) Outcome {
	return Outcome{
		Status:    StatusPassed,
		ExitCode:  0,
		Stdout:    stdout,
		Stderr:    stderr,
		Truncated: truncated,
		Duration:  d,
	}
}

// scriptFailure builds an outcome for a script that ran and failed.
func scriptFailure(exitCode int, stdout, stderr string, truncated bool, d time.Duration) Outcome {
	return Outcome{
		Status:    StatusScriptFailed,
		ExitCode:  exitCode,
		Stdout:    stdout,
		Stderr:    stderr,
		Truncated: truncated,
		Duration:  d,
	}
}

// infraFailure builds an outcome for an environment-level failure.
func infraFailure(reason string) Outcome {
	return Outcome{
		Status:   StatusSandboxFailed,
		ExitCode: -1,
		Reason:   reason,
	}
}

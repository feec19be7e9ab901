package controller

import (
	"github.com/google/uuid"

	"scriptforge/internal/blueprint"
	"scriptforge/internal/sandbox"
)

// FinalState is how a session ended.
type FinalState int

const (
	// StatePending means the session is still being driven.
	StatePending FinalState = iota

	// StateSucceeded means the last attempt passed validation.
	StateSucceeded

	// StateExhaustedFailed means the attempt budget was consumed with only
	// script failures observed.
	StateExhaustedFailed

	// StateAborted means an unrecoverable condition ended the session:
	// a sandbox infrastructure failure, a producer failure, or external
	// cancellation.
	StateAborted
)

// String returns a human-readable name for the state.
func (s FinalState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateExhaustedFailed:
		return "exhausted"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Attempt is one generate-or-revise-then-validate cycle. Attempts are
// appended, never mutated; each revision supersedes the previous attempt's
// script.
type Attempt struct {
	// Index is the zero-based position of this attempt in the session.
	Index int

	// Script is the candidate script text that was validated.
	Script string

	// Outcome is the sandbox verdict for Script.
	Outcome sandbox.Outcome
}

// Session is the full record of one controller run for one spec. It owns
// its attempts; its lifecycle is a single Run invocation.
type Session struct {
	// ID uniquely identifies this session (container names, logs).
	ID string

	// Spec is the target being installed. Immutable for the session.
	Spec blueprint.Spec

	// MaxAttempts is the validated attempt budget (>= 1).
	MaxAttempts int

	// Attempts in order. len(Attempts) <= MaxAttempts always holds.
	Attempts []Attempt

	// Final is how the session ended.
	Final FinalState

	// Err carries the terminal error for non-succeeded sessions. Callers
	// branch with errors.Is against ErrBudgetExhausted, ErrSandbox and
	// ErrProducer.
	Err error
}

// newSession creates a pending session for spec.
func newSession(spec blueprint.Spec, maxAttempts int) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Spec:        spec,
		MaxAttempts: maxAttempts,
		Final:       StatePending,
	}
}

// FinalScript returns the script of the last attempt. Only meaningful for
// succeeded sessions, where it is the validated script to assemble.
func (s *Session) FinalScript() string {
	if len(s.Attempts) == 0 {
		return ""
	}
	return s.Attempts[len(s.Attempts)-1].Script
}

// Succeeded reports whether the session ended with a passing validation.
func (s *Session) Succeeded() bool { return s.Final == StateSucceeded }

// finish marks the session terminal.
func (s *Session) finish(state FinalState, err error) {
	s.Final = state
	s.Err = err
}

package sandbox

import (
	"context"

	"golang.org/x/sync/semaphore"

	"scriptforge/internal/blueprint"
)

// Runner is the validation contract the serializer wraps. DockerRunner
// satisfies it.
type Runner interface {
	Validate(ctx context.Context, script string, spec blueprint.Spec) (Outcome, error)
}

// SerialRunner serializes validations through a single underlying runner.
// Concurrent sessions sharing one container engine use this so only one
// validation container exists at a time.
type SerialRunner struct {
	sem   *semaphore.Weighted
	inner Runner
}

// NewSerialRunner wraps inner so its Validate runs one call at a time.
func NewSerialRunner(inner Runner) *SerialRunner {
	return &SerialRunner{sem: semaphore.NewWeighted(1), inner: inner}
}

// Validate acquires the gate, then delegates. Cancellation while waiting for
// the gate returns immediately without starting a validation, even when
// another validation currently holds the gate.
func (s *SerialRunner) Validate(ctx context.Context, script string, spec blueprint.Spec) (Outcome, error) {
	// Acquire may succeed on an uncontended gate even when ctx is already
	// done, so an already-cancelled call is rejected up front.
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Outcome{}, err
	}
	defer s.sem.Release(1)
	return s.inner.Validate(ctx, script, spec)
}

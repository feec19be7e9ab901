// Package controller drives the bounded generate/validate/revise loop that
// turns a target spec into a validated installation script. It never
// inspects script content itself; it only moves text between the producer
// and the sandbox runner and decides whether to stop, retry, or escalate.
package controller

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"scriptforge/internal/blueprint"
	"scriptforge/internal/sandbox"
)

// Producer generates and revises candidate script text. Implementations are
// opaque to the controller: prompted generation, templates, or static
// catalogs all satisfy the same contract.
type Producer interface {
	// Generate returns an initial candidate script for spec.
	Generate(ctx context.Context, spec blueprint.Spec) (string, error)

	// Revise returns a new candidate derived from the prior script and the
	// most recent failure.
	Revise(ctx context.Context, prior string, report FailureReport) (string, error)
}

// Runner validates a candidate script in an isolated environment.
// sandbox.DockerRunner and sandbox.SerialRunner satisfy it.
type Runner interface {
	Validate(ctx context.Context, script string, spec blueprint.Spec) (sandbox.Outcome, error)
}

// Controller is the attempt state machine. One Run drives one session to
// completion on a single logical thread of control; attempts are strictly
// sequential, and attempt N+1 never starts before attempt N's sandbox has
// been torn down.
type Controller struct {
	producer  Producer
	runner    Runner
	logger    *zap.Logger
	tailBytes int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReportTail sets how many bytes of each output channel reach the
// producer in a failure report.
func WithReportTail(bytes int) Option {
	return func(c *Controller) {
		if bytes > 0 {
			c.tailBytes = bytes
		}
	}
}

// New creates a controller over the given producer and runner.
func New(producer Producer, runner Runner, opts ...Option) *Controller {
	c := &Controller{
		producer:  producer,
		runner:    runner,
		logger:    zap.NewNop(),
		tailBytes: DefaultReportTailBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives at most maxAttempts validate cycles for spec and returns the
// completed session. The returned error is nil only for succeeded sessions;
// otherwise it matches session.Err and wraps one of ErrBudgetExhausted,
// ErrSandbox, ErrProducer, or the context error on cancellation.
func (c *Controller) Run(ctx context.Context, spec blueprint.Spec, maxAttempts int) (*Session, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}

	session := newSession(spec, maxAttempts)
	log := c.logger.With(
		zap.String("session", session.ID),
		zap.String("spec", spec.String()))

	log.Info("Generating initial script", zap.Int("max_attempts", maxAttempts))
	script, err := c.producer.Generate(ctx, spec)
	if err != nil {
		return c.abortProducer(ctx, session, log, fmt.Errorf("generate: %w", err))
	}
	if strings.TrimSpace(script) == "" {
		return c.abortProducer(ctx, session, log, fmt.Errorf("generate returned an empty script"))
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.abortCancelled(session, log, err)
		}

		log.Info("Validating attempt",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts))

		outcome, err := c.runner.Validate(ctx, script, spec)
		if err != nil {
			// The runner only errors on cancellation; no outcome is
			// recorded for an aborted validation.
			return c.abortCancelled(session, log, err)
		}

		session.Attempts = append(session.Attempts, Attempt{
			Index:   attempt,
			Script:  script,
			Outcome: outcome,
		})

		switch outcome.Status {
		case sandbox.StatusPassed:
			session.finish(StateSucceeded, nil)
			log.Info("Validation succeeded", zap.Int("attempts", len(session.Attempts)))
			return session, nil

		case sandbox.StatusSandboxFailed:
			// Infrastructure broke; this is not a "fix this" signal for
			// the producer.
			err := fmt.Errorf("%w: %s", ErrSandbox, outcome.Reason)
			session.finish(StateAborted, err)
			log.Error("Sandbox failure, aborting session", zap.String("reason", outcome.Reason))
			return session, err

		case sandbox.StatusScriptFailed:
			log.Warn("Script failed",
				zap.Int("attempt", attempt+1),
				zap.Int("exit_code", outcome.ExitCode))
			if attempt == maxAttempts-1 {
				err := fmt.Errorf("%w after %d attempts", ErrBudgetExhausted, maxAttempts)
				session.finish(StateExhaustedFailed, err)
				return session, err
			}

			report := newFailureReport(outcome, c.tailBytes)
			revised, err := c.producer.Revise(ctx, script, report)
			if err != nil {
				return c.abortProducer(ctx, session, log, fmt.Errorf("revise: %w", err))
			}
			if strings.TrimSpace(revised) == "" {
				return c.abortProducer(ctx, session, log, fmt.Errorf("revise returned an empty script"))
			}
			if revised == script {
				// Retrying an identical script would waste an attempt on
				// a known failure.
				return c.abortProducer(ctx, session, log, fmt.Errorf("revision did not change the script"))
			}
			script = revised

		default:
			err := fmt.Errorf("%w: unknown outcome status %d", ErrSandbox, outcome.Status)
			session.finish(StateAborted, err)
			return session, err
		}
	}

	// Unreachable: every loop path returns.
	err = fmt.Errorf("%w after %d attempts", ErrBudgetExhausted, maxAttempts)
	session.finish(StateExhaustedFailed, err)
	return session, err
}

// abortProducer finishes the session as aborted with a producer error.
// External cancellation observed while suspended on the producer is not a
// producer defect; it aborts with the context error instead.
func (c *Controller) abortProducer(ctx context.Context, session *Session, log *zap.Logger, cause error) (*Session, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return c.abortCancelled(session, log, ctxErr)
	}
	err := fmt.Errorf("%w: %v", ErrProducer, cause)
	session.finish(StateAborted, err)
	log.Error("Producer failure, aborting session", zap.Error(cause))
	return session, err
}

// abortCancelled finishes the session as aborted due to cancellation.
func (c *Controller) abortCancelled(session *Session, log *zap.Logger, cause error) (*Session, error) {
	session.finish(StateAborted, cause)
	log.Warn("Session cancelled", zap.Error(cause))
	return session, cause
}

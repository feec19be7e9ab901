package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptforge/internal/blueprint"
	"scriptforge/internal/sandbox"
)

var testSpec = blueprint.Spec{Technology: "python", Version: "3.11", PackageManager: "pip"}

// fakeProducer returns scripted generate/revise results and records the
// reports it was shown.
type fakeProducer struct {
	initial     string
	generateErr error

	revisions  []string
	reviseErrs []error
	reviseIdx  int

	reports []FailureReport
	priors  []string
}

func (p *fakeProducer) Generate(ctx context.Context, spec blueprint.Spec) (string, error) {
	return p.initial, p.generateErr
}

func (p *fakeProducer) Revise(ctx context.Context, prior string, report FailureReport) (string, error) {
	p.priors = append(p.priors, prior)
	p.reports = append(p.reports, report)
	i := p.reviseIdx
	p.reviseIdx++
	var err error
	if i < len(p.reviseErrs) {
		err = p.reviseErrs[i]
	}
	if i < len(p.revisions) {
		return p.revisions[i], err
	}
	return "", err
}

// fakeRunner returns scripted outcomes in order and records the scripts it
// validated.
type fakeRunner struct {
	outcomes []sandbox.Outcome
	errs     []error
	idx      int
	scripts  []string
}

func (r *fakeRunner) Validate(ctx context.Context, script string, spec blueprint.Spec) (sandbox.Outcome, error) {
	r.scripts = append(r.scripts, script)
	i := r.idx
	r.idx++
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	if i < len(r.outcomes) {
		return r.outcomes[i], err
	}
	return sandbox.Outcome{}, err
}

func passed() sandbox.Outcome {
	return sandbox.Outcome{Status: sandbox.StatusPassed}
}

func failed(code int, stdout, stderr string) sandbox.Outcome {
	return sandbox.Outcome{Status: sandbox.StatusScriptFailed, ExitCode: code, Stdout: stdout, Stderr: stderr}
}

func infra(reason string) sandbox.Outcome {
	return sandbox.Outcome{Status: sandbox.StatusSandboxFailed, ExitCode: -1, Reason: reason}
}

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	producer := &fakeProducer{initial: "#!/bin/sh\necho ok\n"}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{passed()}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, session.Final)
	assert.Len(t, session.Attempts, 1)
	assert.Equal(t, producer.initial, session.FinalScript())
	assert.Empty(t, producer.reports, "no revision should happen on success")
}

func TestRun_ReviseAfterFailureThenSucceed(t *testing.T) {
	s0 := "#!/bin/sh\nexit 1\n"
	s1 := "#!/bin/sh\necho fixed\n"
	producer := &fakeProducer{initial: s0, revisions: []string{s1}}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{
		failed(1, "installing...", "not found"),
		passed(),
	}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, session.Final)
	require.Len(t, session.Attempts, 2)
	assert.Equal(t, s1, session.FinalScript())

	// Revision N+1 is derived from attempt N's script and failure.
	require.Len(t, producer.priors, 1)
	assert.Equal(t, s0, producer.priors[0])
	require.Len(t, producer.reports, 1)
	assert.Equal(t, 1, producer.reports[0].ExitCode)
	assert.Equal(t, "not found", producer.reports[0].Stderr)

	wantScripts := []string{s0, s1}
	if diff := cmp.Diff(wantScripts, runner.scripts); diff != "" {
		t.Errorf("validated scripts mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_BudgetExhausted(t *testing.T) {
	producer := &fakeProducer{
		initial:   "v0\n",
		revisions: []string{"v1\n"},
	}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{
		failed(1, "", "boom"),
		failed(2, "", "boom again"),
	}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExhausted)

	assert.Equal(t, StateExhaustedFailed, session.Final)
	assert.Len(t, session.Attempts, 2)
	// One revise per failure except the last: the budget is spent.
	assert.Len(t, producer.reports, 1)
}

func TestRun_SandboxErrorAbortsImmediately(t *testing.T) {
	producer := &fakeProducer{initial: "v0\n", revisions: []string{"v1\n"}}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{
		infra("image pull failed"),
	}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSandbox)
	assert.Contains(t, err.Error(), "image pull failed")

	assert.Equal(t, StateAborted, session.Final)
	assert.Len(t, session.Attempts, 1)
	assert.Empty(t, producer.reports, "sandbox errors are never fed to the producer")
}

func TestRun_TimeoutIsScriptDefect(t *testing.T) {
	producer := &fakeProducer{initial: "v0\n", revisions: []string{"v1\n"}}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{
		failed(sandbox.ExitCodeTimeout, "partial output", "scriptforge: script timed out after 5m0s\n"),
		passed(),
	}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, session.Final)
	require.Len(t, producer.reports, 1)
	assert.Equal(t, sandbox.ExitCodeTimeout, producer.reports[0].ExitCode)
	assert.Contains(t, producer.reports[0].Stderr, "timed out")
}

func TestRun_GenerateErrorAborts(t *testing.T) {
	producer := &fakeProducer{generateErr: fmt.Errorf("model unavailable")}
	runner := &fakeRunner{}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProducer)
	assert.Equal(t, StateAborted, session.Final)
	assert.Empty(t, session.Attempts)
	assert.Empty(t, runner.scripts, "nothing should be validated")
}

func TestRun_EmptyGenerateIsProducerError(t *testing.T) {
	producer := &fakeProducer{initial: "   \n"}
	session, err := New(producer, &fakeRunner{}).Run(context.Background(), testSpec, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProducer)
	assert.Equal(t, StateAborted, session.Final)
}

func TestRun_ReviseErrorAborts(t *testing.T) {
	producer := &fakeProducer{
		initial:    "v0\n",
		reviseErrs: []error{fmt.Errorf("model unavailable")},
	}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{failed(1, "", "")}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProducer)
	assert.Equal(t, StateAborted, session.Final)
	assert.Len(t, session.Attempts, 1)
}

func TestRun_IdenticalRevisionIsProducerError(t *testing.T) {
	script := "#!/bin/sh\nexit 1\n"
	producer := &fakeProducer{initial: script, revisions: []string{script}}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{failed(1, "", "")}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProducer)
	assert.Contains(t, err.Error(), "did not change")
	assert.Equal(t, StateAborted, session.Final)
}

func TestRun_NoConsecutiveIdenticalScripts(t *testing.T) {
	producer := &fakeProducer{
		initial:   "v0\n",
		revisions: []string{"v1\n", "v2\n"},
	}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{
		failed(1, "", ""),
		failed(1, "", ""),
		failed(1, "", ""),
	}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	assert.ErrorIs(t, err, ErrBudgetExhausted)

	for i := 1; i < len(session.Attempts); i++ {
		assert.NotEqual(t, session.Attempts[i-1].Script, session.Attempts[i].Script,
			"attempts %d and %d have identical scripts", i-1, i)
	}
}

func TestRun_AttemptsNeverExceedBudget(t *testing.T) {
	for _, budget := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("budget_%d", budget), func(t *testing.T) {
			producer := &fakeProducer{
				initial:   "v0\n",
				revisions: []string{"v1\n", "v2\n", "v3\n", "v4\n", "v5\n"},
			}
			runner := &fakeRunner{outcomes: []sandbox.Outcome{
				failed(1, "", ""), failed(1, "", ""), failed(1, "", ""),
				failed(1, "", ""), failed(1, "", ""), failed(1, "", ""),
			}}

			session, _ := New(producer, runner).Run(context.Background(), testSpec, budget)
			assert.LessOrEqual(t, len(session.Attempts), budget)
			assert.Equal(t, StateExhaustedFailed, session.Final)
		})
	}
}

func TestRun_InvalidInputs(t *testing.T) {
	ctrl := New(&fakeProducer{initial: "v0\n"}, &fakeRunner{})

	_, err := ctrl.Run(context.Background(), testSpec, 0)
	assert.Error(t, err, "zero attempt budget must be rejected")

	_, err = ctrl.Run(context.Background(), blueprint.Spec{Technology: "python"}, 3)
	assert.Error(t, err, "incomplete spec must be rejected")
}

func TestRun_CancellationAbortsWithoutRecordingOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	producer := &fakeProducer{initial: "v0\n"}
	runner := &fakeRunner{errs: []error{context.Canceled}}
	cancel()

	session, err := New(producer, runner).Run(ctx, testSpec, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, session.Final)
	assert.Empty(t, session.Attempts, "no outcome is recorded for a cancelled validation")
}

// cancellingProducer cancels the run mid-call and returns the context error,
// the shape a real producer call takes when the user interrupts it.
type cancellingProducer struct {
	cancel     context.CancelFunc
	onGenerate bool
	initial    string
}

func (p *cancellingProducer) Generate(ctx context.Context, spec blueprint.Spec) (string, error) {
	if p.onGenerate {
		p.cancel()
		return "", ctx.Err()
	}
	return p.initial, nil
}

func (p *cancellingProducer) Revise(ctx context.Context, prior string, report FailureReport) (string, error) {
	p.cancel()
	return "", ctx.Err()
}

func TestRun_CancellationDuringGenerateIsNotProducerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	producer := &cancellingProducer{cancel: cancel, onGenerate: true}

	session, err := New(producer, &fakeRunner{}).Run(ctx, testSpec, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrProducer), "interruption is not a producer defect")
	assert.Equal(t, StateAborted, session.Final)
}

func TestRun_CancellationDuringReviseIsNotProducerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	producer := &cancellingProducer{cancel: cancel, initial: "v0\n"}
	runner := &fakeRunner{outcomes: []sandbox.Outcome{failed(1, "", "boom")}}

	session, err := New(producer, runner).Run(ctx, testSpec, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrProducer), "interruption is not a producer defect")
	assert.Equal(t, StateAborted, session.Final)
	assert.Len(t, session.Attempts, 1)
}

func TestRun_RunnerCancellationMidValidation(t *testing.T) {
	producer := &fakeProducer{initial: "v0\n"}
	runner := &fakeRunner{errs: []error{context.Canceled}}

	session, err := New(producer, runner).Run(context.Background(), testSpec, 3)
	require.Error(t, err)
	assert.Equal(t, StateAborted, session.Final)
	assert.Empty(t, session.Attempts)
}

func TestSession_FinalScriptEmptyWithoutAttempts(t *testing.T) {
	s := newSession(testSpec, 3)
	assert.Equal(t, "", s.FinalScript())
	assert.Equal(t, StatePending, s.Final)
	assert.NotEmpty(t, s.ID)
}

func TestFinalStateStrings(t *testing.T) {
	cases := map[FinalState]string{
		StatePending:         "pending",
		StateSucceeded:       "succeeded",
		StateExhaustedFailed: "exhausted",
		StateAborted:         "aborted",
		FinalState(99):       "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrBudgetExhausted, ErrSandbox))
	assert.False(t, errors.Is(ErrSandbox, ErrProducer))
	assert.False(t, errors.Is(ErrProducer, ErrBudgetExhausted))
}

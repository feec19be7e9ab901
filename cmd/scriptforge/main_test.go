package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptforge/internal/controller"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitSucceeded},
		{"budget exhausted", fmt.Errorf("wrap: %w", controller.ErrBudgetExhausted), exitBudgetExhausted},
		{"sandbox error", fmt.Errorf("wrap: %w", controller.ErrSandbox), exitSandboxError},
		{"producer error", fmt.Errorf("wrap: %w", controller.ErrProducer), exitProducerError},
		{"cancelled", context.Canceled, exitAborted},
		{"deadline", context.DeadlineExceeded, exitAborted},
		{"unknown", fmt.Errorf("something else"), exitAborted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
		})
	}
}

func TestLoadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yml")
	content := `
targets:
  - technology: python
    version: "3.11"
    package_manager: pip
  - technology: node
    version: "22"
    package_manager: npm
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	targets, err := loadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "python", targets[0].Technology)
	assert.Equal(t, "npm", targets[1].PackageManager)
}

func TestLoadTargets_Rejections(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yml")
	require.NoError(t, os.WriteFile(empty, []byte("targets: []\n"), 0o644))
	_, err := loadTargets(empty)
	assert.Error(t, err, "empty target list is rejected")

	invalid := filepath.Join(dir, "invalid.yml")
	require.NoError(t, os.WriteFile(invalid, []byte("targets:\n  - technology: python\n"), 0o644))
	_, err = loadTargets(invalid)
	assert.Error(t, err, "incomplete targets are rejected")

	_, err = loadTargets(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestExitError(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &exitError{code: exitSandboxError, err: inner}
	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

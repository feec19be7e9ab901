package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"scriptforge/internal/blueprint"
	"scriptforge/internal/controller"
)

func TestBuildGeneratePrompt(t *testing.T) {
	spec := blueprint.Spec{Technology: "node", Version: "22.1.0", PackageManager: "npm"}
	prompt := buildGeneratePrompt(spec)

	assert.Contains(t, prompt, "node")
	assert.Contains(t, prompt, "22.1.0")
	assert.Contains(t, prompt, "npm")
	assert.Contains(t, prompt, "Alpine")
	assert.Contains(t, prompt, "Debian")
	assert.Contains(t, prompt, exampleScript, "the example script is shown for structure")
	assert.Contains(t, prompt, "fenced shell code block")
}

func TestBuildRevisePrompt(t *testing.T) {
	prior := "#!/bin/sh\napt-get install -y curl\n"
	report := controller.FailureReport{
		ExitCode: 127,
		Stdout:   "Installing curl...",
		Stderr:   "apt-get: not found",
	}

	prompt := buildRevisePrompt(prior, report)

	assert.Contains(t, prompt, prior, "the failed script is embedded verbatim")
	assert.Contains(t, prompt, "exit code: 127")
	assert.Contains(t, prompt, "apt-get: not found")
	assert.Contains(t, prompt, "Installing curl...")
	assert.Contains(t, prompt, "corrected")
}

func TestDefaultGeminiConfig(t *testing.T) {
	cfg := DefaultGeminiConfig("key")
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model)
	assert.Greater(t, cfg.Timeout.Seconds(), 0.0)
}

package blueprint

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Metadata is the descriptive half of a blueprint, written as blueprint.yml
// next to the validated run.sh.
type Metadata struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Author      string `yaml:"author"`
}

// Assembler packages a validated script plus metadata into a persisted
// blueprint directory. It is only ever invoked for scripts that passed
// sandbox validation.
type Assembler struct {
	setupDir string
	author   string
	version  string
	logger   *zap.Logger
}

// NewAssembler creates an assembler rooted at setupDir. author and version
// are stamped into every blueprint.yml.
func NewAssembler(setupDir, author, version string, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		setupDir: setupDir,
		author:   author,
		version:  version,
		logger:   logger,
	}
}

// Assemble writes run.sh (executable) and blueprint.yml for spec and returns
// the blueprint directory path.
func (a *Assembler) Assemble(spec Spec, script string) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid spec: %w", err)
	}
	if script == "" {
		return "", fmt.Errorf("refusing to assemble an empty script for %s", spec)
	}

	dir := filepath.Join(a.setupDir, spec.Slug())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create blueprint directory: %w", err)
	}

	runPath := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(runPath, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("failed to write run.sh: %w", err)
	}

	meta := Metadata{
		Name:    spec.Slug(),
		Version: a.version,
		Description: fmt.Sprintf(
			"Installs %s %s if it is not already present in the runner environment.",
			spec.Technology, spec.Version),
		Author: a.author,
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal blueprint metadata: %w", err)
	}
	metaPath := filepath.Join(dir, "blueprint.yml")
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blueprint.yml: %w", err)
	}

	a.logger.Info("Blueprint assembled",
		zap.String("dir", dir),
		zap.String("spec", spec.String()))
	return dir, nil
}

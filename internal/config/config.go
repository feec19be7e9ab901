// Package config holds all scriptforge configuration: sandbox provisioning,
// producer backend, loop budget, and output layout. Configuration is loaded
// from an optional YAML file with environment overrides on top of defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scriptforge configuration.
type Config struct {
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Producer ProducerConfig `yaml:"producer"`
	Loop     LoopConfig     `yaml:"loop"`
	Output   OutputConfig   `yaml:"output"`
}

// SandboxConfig configures the validation container.
type SandboxConfig struct {
	Image            string `yaml:"image"`
	Network          string `yaml:"network"`
	Memory           string `yaml:"memory"`
	PidsLimit        int    `yaml:"pids_limit"`
	ExecTimeout      string `yaml:"exec_timeout"`
	ProvisionTimeout string `yaml:"provision_timeout"`
	MaxOutputBytes   int64  `yaml:"max_output_bytes"`
}

// ProducerConfig configures the script producer backend.
type ProducerConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// LoopConfig configures the attempt controller.
type LoopConfig struct {
	// MaxAttempts is the default attempt budget; the CLI can override it
	// per run. Must be >= 1.
	MaxAttempts int `yaml:"max_attempts"`

	// ReportTailBytes bounds each output channel in a failure report.
	ReportTailBytes int `yaml:"report_tail_bytes"`
}

// OutputConfig configures where blueprints are written and how they are
// stamped.
type OutputConfig struct {
	Dir              string `yaml:"dir"`
	Author           string `yaml:"author"`
	BlueprintVersion string `yaml:"blueprint_version"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Sandbox: SandboxConfig{
			Image:            "alpine:latest",
			Network:          "bridge",
			Memory:           "512m",
			PidsLimit:        256,
			ExecTimeout:      "5m",
			ProvisionTimeout: "2m",
			MaxOutputBytes:   10 * 1024 * 1024,
		},
		Producer: ProducerConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "3m",
		},
		Loop: LoopConfig{
			MaxAttempts:     3,
			ReportTailBytes: 4096,
		},
		Output: OutputConfig{
			Dir:              "setup",
			Author:           "Blueprint Generator",
			BlueprintVersion: "1.0.0",
		},
	}
}

// Load reads configuration from path (optional; empty means defaults only),
// applies environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers environment overrides on top of file/default values.
func (c *Config) applyEnv() {
	if v := os.Getenv("SCRIPTFORGE_API_KEY"); v != "" {
		c.Producer.APIKey = v
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Producer.APIKey == "" {
		c.Producer.APIKey = v
	}
	if v := os.Getenv("SCRIPTFORGE_MODEL"); v != "" {
		c.Producer.Model = v
	}
	if v := os.Getenv("SCRIPTFORGE_IMAGE"); v != "" {
		c.Sandbox.Image = v
	}
	if v := os.Getenv("SCRIPTFORGE_SETUP_DIR"); v != "" {
		c.Output.Dir = v
	}
}

// Validate checks structural invariants and duration syntax.
func (c *Config) Validate() error {
	if c.Loop.MaxAttempts < 1 {
		return fmt.Errorf("loop.max_attempts must be at least 1, got %d", c.Loop.MaxAttempts)
	}
	if c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image is required")
	}
	if _, err := c.ExecTimeout(); err != nil {
		return err
	}
	if _, err := c.ProvisionTimeout(); err != nil {
		return err
	}
	if _, err := c.ProducerTimeout(); err != nil {
		return err
	}
	return nil
}

// ExecTimeout parses the per-attempt execution deadline.
func (c *Config) ExecTimeout() (time.Duration, error) {
	return parseDuration("sandbox.exec_timeout", c.Sandbox.ExecTimeout)
}

// ProvisionTimeout parses the environment provisioning deadline.
func (c *Config) ProvisionTimeout() (time.Duration, error) {
	return parseDuration("sandbox.provision_timeout", c.Sandbox.ProvisionTimeout)
}

// ProducerTimeout parses the per-call producer deadline.
func (c *Config) ProducerTimeout() (time.Duration, error) {
	return parseDuration("producer.timeout", c.Producer.Timeout)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, d)
	}
	return d, nil
}

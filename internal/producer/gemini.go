// Package producer generates and revises candidate installation scripts.
// The Gemini producer is the default backend; anything satisfying
// controller.Producer can be substituted without touching the loop.
package producer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"scriptforge/internal/blueprint"
	"scriptforge/internal/controller"
)

// GeminiConfig configures the Gemini producer.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		Model:   "gemini-2.5-flash",
		Timeout: 3 * time.Minute,
	}
}

// Gemini produces scripts via the Gemini API.
type Gemini struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

// NewGemini creates a Gemini producer.
func NewGemini(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultGeminiConfig("").Model
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultGeminiConfig("").Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, config: config, logger: logger}, nil
}

// Generate returns an initial candidate script for spec.
func (g *Gemini) Generate(ctx context.Context, spec blueprint.Spec) (string, error) {
	g.logger.Info("Requesting initial script",
		zap.String("spec", spec.String()),
		zap.String("model", g.config.Model))
	return g.complete(ctx, buildGeneratePrompt(spec))
}

// Revise returns a corrected script derived from the prior attempt and its
// failure report.
func (g *Gemini) Revise(ctx context.Context, prior string, report controller.FailureReport) (string, error) {
	g.logger.Info("Requesting script revision",
		zap.Int("exit_code", report.ExitCode),
		zap.String("model", g.config.Model))
	return g.complete(ctx, buildRevisePrompt(prior, report))
}

// complete sends one prompt and extracts the script from the response.
func (g *Gemini) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx,
		g.config.Model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.2),
		},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini call failed: %w", err)
	}

	script, err := extractScript(resp.Text())
	if err != nil {
		return "", err
	}
	return script, nil
}

// scriptforge generates shell installation scripts for a technology/version/
// package-manager triple, validates them in disposable Docker containers,
// and repairs them in a bounded attempt loop. Validated blueprints are
// persisted under the setup tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"scriptforge/internal/blueprint"
	"scriptforge/internal/config"
	"scriptforge/internal/controller"
	"scriptforge/internal/producer"
	"scriptforge/internal/sandbox"
)

// Exit codes, stable so automation can branch on why the loop ended.
const (
	exitSucceeded       = 0
	exitBudgetExhausted = 1
	exitSandboxError    = 2
	exitProducerError   = 3
	exitAborted         = 4
	exitUsage           = 5
)

var (
	// Global flags
	verbose    bool
	configPath string

	// run/batch flags
	maxAttempts int
	image       string
	apiKey      string

	// batch flags
	parallel int

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scriptforge",
	Short: "scriptforge - validated installation blueprint generator",
	Long: `scriptforge builds installation blueprints for technology stacks.

For each requested (technology, version, package manager) triple it asks a
script producer for a candidate run.sh, executes the candidate inside a
disposable Docker container, and feeds failures back to the producer until
the script passes or the attempt budget runs out. Passing scripts are
persisted as blueprints (run.sh + blueprint.yml) under the setup tree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd drives one blueprint session.
var runCmd = &cobra.Command{
	Use:   "run TECHNOLOGY VERSION PACKAGE_MANAGER",
	Short: "Generate and validate a blueprint for one technology",
	Long: `Runs the full generate/validate/revise loop for a single triple.

Example:
  scriptforge run python 3.11 pip --max-attempts 3`,
	Args: cobra.ExactArgs(3),
	RunE: runBlueprint,
}

func runBlueprint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	spec := blueprint.Spec{
		Technology:     args[0],
		Version:        args[1],
		PackageManager: args[2],
	}

	ctx, cancel := signalContext()
	defer cancel()

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}

	session, runErr := deps.controller.Run(ctx, spec, budgetFor(cmd, cfg))
	return finishSession(deps.assembler, session, runErr)
}

// budgetFor resolves the attempt budget: flag override, else config default.
func budgetFor(cmd *cobra.Command, cfg config.Config) int {
	if cmd.Flags().Changed("max-attempts") {
		return maxAttempts
	}
	return cfg.Loop.MaxAttempts
}

// loadConfig loads configuration and applies flag-level overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, &exitError{code: exitUsage, err: err}
	}
	if cmd.Flags().Changed("image") {
		cfg.Sandbox.Image = image
	}
	if apiKey != "" {
		cfg.Producer.APIKey = apiKey
	}
	return cfg, nil
}

// deps bundles the wired collaborators for one or more sessions.
type deps struct {
	controller *controller.Controller
	assembler  *blueprint.Assembler
	runner     sandbox.Runner
	producer   controller.Producer
}

// buildDeps wires producer, runner, controller and assembler from config.
func buildDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	execTimeout, _ := cfg.ExecTimeout()
	provisionTimeout, _ := cfg.ProvisionTimeout()
	producerTimeout, _ := cfg.ProducerTimeout()

	runner := sandbox.NewDockerRunner(sandbox.Config{
		Image:            cfg.Sandbox.Image,
		Network:          cfg.Sandbox.Network,
		Memory:           cfg.Sandbox.Memory,
		PidsLimit:        cfg.Sandbox.PidsLimit,
		ExecTimeout:      execTimeout,
		ProvisionTimeout: provisionTimeout,
		MaxOutputBytes:   cfg.Sandbox.MaxOutputBytes,
	}, logger)

	gemini, err := producer.NewGemini(ctx, producer.GeminiConfig{
		APIKey:  cfg.Producer.APIKey,
		Model:   cfg.Producer.Model,
		Timeout: producerTimeout,
	}, logger)
	if err != nil {
		return nil, &exitError{code: exitProducerError, err: err}
	}

	ctrl := controller.New(gemini, runner,
		controller.WithLogger(logger),
		controller.WithReportTail(cfg.Loop.ReportTailBytes))

	assembler := blueprint.NewAssembler(
		cfg.Output.Dir, cfg.Output.Author, cfg.Output.BlueprintVersion, logger)

	return &deps{controller: ctrl, assembler: assembler, runner: runner, producer: gemini}, nil
}

// finishSession assembles successful sessions and maps terminal errors to
// exit codes.
func finishSession(assembler *blueprint.Assembler, session *controller.Session, runErr error) error {
	if runErr != nil {
		return &exitError{code: exitCodeFor(runErr), err: runErr}
	}

	dir, err := assembler.Assemble(session.Spec, session.FinalScript())
	if err != nil {
		return &exitError{code: exitAborted, err: err}
	}
	fmt.Printf("Blueprint for %s written to %s (%d attempt(s))\n",
		session.Spec, dir, len(session.Attempts))
	return nil
}

// exitCodeFor maps a terminal session error to the documented exit codes.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitSucceeded
	case errors.Is(err, controller.ErrBudgetExhausted):
		return exitBudgetExhausted
	case errors.Is(err, controller.ErrSandbox):
		return exitSandboxError
	case errors.Is(err, controller.ErrProducer):
		return exitProducerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return exitAborted
	default:
		return exitAborted
	}
}

// exitError carries a process exit code alongside the error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if logger != nil {
				logger.Info("Received shutdown signal")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	runCmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "maximum generate/validate attempts")
	runCmd.Flags().StringVar(&image, "image", "", "base image for the validation container")
	runCmd.Flags().StringVar(&apiKey, "api-key", "", "producer API key (or SCRIPTFORGE_API_KEY)")

	batchCmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "maximum generate/validate attempts per target")
	batchCmd.Flags().StringVar(&image, "image", "", "base image for the validation container")
	batchCmd.Flags().StringVar(&apiKey, "api-key", "", "producer API key (or SCRIPTFORGE_API_KEY)")
	batchCmd.Flags().IntVar(&parallel, "parallel", 1, "concurrent sessions (validations share one container engine)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitUsage)
	}
}

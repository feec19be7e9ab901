package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"scriptforge/internal/blueprint"
	"scriptforge/internal/controller"
	"scriptforge/internal/sandbox"
)

// batchCmd runs independent sessions for every target listed in a YAML file.
var batchCmd = &cobra.Command{
	Use:   "batch FILE",
	Short: "Generate and validate blueprints for a list of targets",
	Long: `Reads a YAML file listing targets and drives an independent session for
each. Sessions share no mutable state; validations are serialized through
one container engine unless --parallel raises the session limit.

File format:

  targets:
    - technology: python
      version: "3.11"
      package_manager: pip
    - technology: node
      version: "22"
      package_manager: npm`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// batchFile is the on-disk format for batch targets.
type batchFile struct {
	Targets []blueprint.Spec `yaml:"targets"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	targets, err := loadTargets(args[0])
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	ctx, cancel := signalContext()
	defer cancel()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}

	// One container engine backs every session: serialize validations so
	// container runs never overlap.
	runner := sandbox.Runner(sandbox.NewSerialRunner(d.runner))
	budget := budgetFor(cmd, cfg)

	limit := parallel
	if limit < 1 {
		limit = 1
	}

	var (
		mu       sync.Mutex
		sessions = make([]*controller.Session, len(targets))
		errs     = make([]error, len(targets))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, spec := range targets {
		g.Go(func() error {
			ctrl := controllerFor(d, runner, cfg.Loop.ReportTailBytes)
			session, runErr := ctrl.Run(gctx, spec, budget)
			mu.Lock()
			sessions[i] = session
			errs[i] = runErr
			mu.Unlock()
			// A failed target must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	worst := exitSucceeded
	failed := 0
	for i, spec := range targets {
		session, runErr := sessions[i], errs[i]
		if runErr == nil && session != nil {
			dir, asmErr := d.assembler.Assemble(session.Spec, session.FinalScript())
			if asmErr != nil {
				runErr = asmErr
				logger.Error("Assembly failed", zap.String("spec", spec.String()), zap.Error(asmErr))
			} else {
				fmt.Printf("ok   %-30s %s\n", spec.Slug(), dir)
				continue
			}
		}
		failed++
		if code := exitCodeFor(runErr); code > worst {
			worst = code
		}
		fmt.Printf("FAIL %-30s %v\n", spec.Slug(), runErr)
	}

	if worst != exitSucceeded {
		return &exitError{code: worst, err: fmt.Errorf("%d of %d targets failed", failed, len(targets))}
	}
	return nil
}

// controllerFor builds a controller bound to the shared producer and the
// (possibly serialized) runner.
func controllerFor(d *deps, runner sandbox.Runner, tailBytes int) *controller.Controller {
	return controller.New(d.producer, runner,
		controller.WithLogger(logger),
		controller.WithReportTail(tailBytes))
}

// loadTargets parses and validates the batch file.
func loadTargets(path string) ([]blueprint.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(bf.Targets) == 0 {
		return nil, fmt.Errorf("batch file lists no targets")
	}
	for i, spec := range bf.Targets {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i+1, err)
		}
	}
	return bf.Targets, nil
}

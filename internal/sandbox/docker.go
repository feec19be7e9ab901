package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scriptforge/internal/blueprint"
)

// dockerDaemonExit is the exit code the docker CLI reserves for its own
// errors (daemon unreachable, image resolution failure, bad flags). Anything
// else from `docker run` is the container's exit code.
const dockerDaemonExit = 125

// execCommand builds the docker CLI invocations. Tests substitute it to
// observe and fake the subprocess layer.
var execCommand = exec.CommandContext

// Config controls how validation containers are provisioned and run.
type Config struct {
	// Image is the base image for validation containers.
	Image string

	// Network is the Docker network mode ("bridge", "none", "host").
	// Installation scripts download from the network, so the default
	// config uses "bridge".
	Network string

	// Memory is the container memory limit in Docker syntax (e.g. "512m").
	Memory string

	// PidsLimit caps the number of processes in the container. Zero means
	// no limit.
	PidsLimit int

	// ExecTimeout is the wall-clock deadline for one script run.
	ExecTimeout time.Duration

	// ProvisionTimeout bounds environment setup (daemon probe, image pull).
	ProvisionTimeout time.Duration

	// MaxOutputBytes caps captured stdout and stderr (each). Zero means
	// the 10MB default.
	MaxOutputBytes int64
}

// DefaultConfig returns sensible defaults for validation runs.
func DefaultConfig() Config {
	return Config{
		Image:            "alpine:latest",
		Network:          "bridge",
		Memory:           "512m",
		PidsLimit:        256,
		ExecTimeout:      5 * time.Minute,
		ProvisionTimeout: 2 * time.Minute,
		MaxOutputBytes:   10 * 1024 * 1024,
	}
}

// DockerRunner validates scripts by running them inside disposable Docker
// containers via the docker CLI. Each validation provisions a fresh
// container from the clean base image and tears it down afterwards
// regardless of outcome.
type DockerRunner struct {
	config Config
	logger *zap.Logger

	// dockerPath is the path to the docker binary.
	dockerPath string

	// available is true if Docker was reachable at construction time.
	available bool
}

// NewDockerRunner creates a runner and probes for a responsive Docker
// daemon. An unavailable daemon is not an error here; Validate reports it
// as a sandbox failure.
func NewDockerRunner(config Config, logger *zap.Logger) *DockerRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &DockerRunner{config: config, logger: logger}
	r.detectDocker()
	return r
}

// detectDocker checks that the docker binary exists and the daemon responds.
func (r *DockerRunner) detectDocker() {
	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		r.available = false
		return
	}
	r.dockerPath = dockerPath

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := execCommand(ctx, dockerPath, "version", "--format", "{{.Server.Version}}")
	r.available = cmd.Run() == nil
}

// IsAvailable reports whether Docker was reachable when the runner was built.
func (r *DockerRunner) IsAvailable() bool { return r.available }

// Validate runs script inside a fresh container and classifies the result.
//
// The returned error is non-nil only when ctx was cancelled; in that case no
// outcome is recorded. All script and infrastructure failures are expressed
// through the Outcome.
func (r *DockerRunner) Validate(ctx context.Context, script string, spec blueprint.Spec) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if !r.available {
		return infraFailure("docker is not available on this system"), nil
	}
	if strings.TrimSpace(script) == "" {
		return infraFailure("refusing to validate an empty script"), nil
	}

	if outcome, ok := r.ensureImage(ctx); !ok {
		return outcome, ctx.Err()
	}

	name := "sf-" + uuid.NewString()
	defer r.removeContainer(name)

	args := r.buildRunArgs(name)

	timeout := r.config.ExecTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ExecTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := execCommand(execCtx, r.dockerPath, args...)
	execCmd.Stdin = strings.NewReader(script)

	maxOutput := r.config.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultConfig().MaxOutputBytes
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	r.logger.Info("Validating script in sandbox",
		zap.String("spec", spec.String()),
		zap.String("image", r.config.Image),
		zap.String("container", name),
		zap.Duration("timeout", timeout))

	started := time.Now()
	runErr := execCmd.Run()
	elapsed := time.Since(started)

	stdout := stdoutBuf.String()
	stderr := stderrBuf.String()
	truncated := stdoutLimited.truncated || stderrLimited.truncated

	// Cancellation wins over any outcome: nothing is recorded for a run
	// that was aborted mid-flight.
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	if execCtx.Err() == context.DeadlineExceeded {
		r.logger.Warn("Script exceeded execution deadline",
			zap.String("container", name),
			zap.Duration("timeout", timeout))
		stderr = appendLine(stderr, fmt.Sprintf("scriptforge: script timed out after %s", timeout))
		return scriptFailure(ExitCodeTimeout, stdout, stderr, truncated, elapsed), nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			if code == dockerDaemonExit {
				return infraFailure(fmt.Sprintf("docker run failed: %s", lastLine(stderr))), nil
			}
			r.logger.Info("Script failed",
				zap.String("container", name),
				zap.Int("exit_code", code))
			return scriptFailure(code, stdout, stderr, truncated, elapsed), nil
		}
		// The process never started (exec error, pipe failure).
		return infraFailure(fmt.Sprintf("failed to start sandbox: %v", runErr)), nil
	}

	r.logger.Info("Script passed validation",
		zap.String("container", name),
		zap.Duration("duration", elapsed))
	return passedOutcome(stdout, stderr, truncated, elapsed), nil
}

// ensureImage makes sure the base image is available locally, pulling it
// within the provisioning timeout if needed. Returns ok=false with a
// sandbox-failure outcome when provisioning failed.
func (r *DockerRunner) ensureImage(ctx context.Context) (Outcome, bool) {
	inspectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	inspect := execCommand(inspectCtx, r.dockerPath, "image", "inspect", r.config.Image)
	inspect.Stdout = io.Discard
	inspect.Stderr = io.Discard
	if inspect.Run() == nil {
		return Outcome{}, true
	}

	provisionTimeout := r.config.ProvisionTimeout
	if provisionTimeout <= 0 {
		provisionTimeout = DefaultConfig().ProvisionTimeout
	}
	pullCtx, cancelPull := context.WithTimeout(ctx, provisionTimeout)
	defer cancelPull()

	r.logger.Info("Pulling base image", zap.String("image", r.config.Image))
	var pullErrBuf bytes.Buffer
	pull := execCommand(pullCtx, r.dockerPath, "pull", r.config.Image)
	pull.Stdout = io.Discard
	pull.Stderr = &pullErrBuf
	if err := pull.Run(); err != nil {
		if pullCtx.Err() == context.DeadlineExceeded {
			return infraFailure(fmt.Sprintf("timed out pulling image %q after %s", r.config.Image, provisionTimeout)), false
		}
		return infraFailure(fmt.Sprintf("failed to pull image %q: %s", r.config.Image, lastLine(pullErrBuf.String()))), false
	}
	return Outcome{}, true
}

// buildRunArgs constructs the docker run command line. The script itself is
// delivered on stdin to /bin/sh, so it works unchanged on any base image
// that ships a POSIX shell.
func (r *DockerRunner) buildRunArgs(name string) []string {
	args := []string{"run", "--rm", "--name", name, "-i"}

	network := r.config.Network
	if network == "" {
		network = "bridge"
	}
	args = append(args, "--network", network)

	if r.config.Memory != "" {
		args = append(args, "--memory", r.config.Memory)
	}
	if r.config.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", r.config.PidsLimit))
	}

	image := r.config.Image
	if image == "" {
		image = DefaultConfig().Image
	}
	args = append(args, image, "/bin/sh", "-s")
	return args
}

// removeContainer force-removes the named container. `docker run --rm`
// normally handles cleanup; this covers the timeout and kill paths where
// the CLI process died before the daemon reaped the container.
func (r *DockerRunner) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rm := execCommand(ctx, r.dockerPath, "rm", "-f", name)
	rm.Stdout = io.Discard
	rm.Stderr = io.Discard
	// Already-gone containers make this fail; that is the normal case.
	_ = rm.Run()
}

// appendLine appends line to s, inserting a newline separator when needed.
func appendLine(s, line string) string {
	if s == "" {
		return line + "\n"
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line + "\n"
}

// lastLine returns the last non-empty line of s, for compact error reasons.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		p = p[:remaining]
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return n, err
}

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/aryeko/ghx-router-sub004/internal/engine"
)

// CLIRunner runs commands with os/exec. It implements engine.CommandRunner.
type CLIRunner struct {
	binary string
	env    []string
	logger *slog.Logger
}

// RunnerOption configures a CLIRunner.
type RunnerOption func(*CLIRunner)

// WithBinary sets the gh executable. Default: gh from PATH.
func WithBinary(path string) RunnerOption {
	return func(r *CLIRunner) { r.binary = path }
}

// WithGHToken passes token to gh as GH_TOKEN.
func WithGHToken(token string) RunnerOption {
	return func(r *CLIRunner) {
		if token != "" {
			r.env = append(r.env, "GH_TOKEN="+token)
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *CLIRunner) { r.logger = l }
}

// NewCLIRunner creates a runner. Commands never prompt.
func NewCLIRunner(opts ...RunnerOption) *CLIRunner {
	r := &CLIRunner{
		binary: "gh",
		env:    []string{"GH_PROMPT_DISABLED=1", "NO_COLOR=1"},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes command with args. A non-zero exit is reported through
// CommandResult.ExitCode with a nil error; the error is reserved for
// commands that could not run or were cut off by ctx or timeout.
// The command "gh" runs the configured binary.
func (r *CLIRunner) Run(ctx context.Context, command string, args []string, timeout time.Duration) (engine.CommandResult, error) {
	if command == "gh" {
		command = r.binary
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(os.Environ(), r.env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := engine.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	r.logger.Debug("command run", "command", command, "args", args, "duration", time.Since(start), "error", err)

	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", command, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, &engine.Error{Code: engine.CodeAdapterUnsupported, Message: fmt.Sprintf("cannot run %s: %v", command, err), Err: err}
}

// CLIStatus describes the local gh installation.
type CLIStatus struct {
	Available     bool
	Authenticated bool
}

// Detect reports whether the binary is on PATH and logged in.
func (r *CLIRunner) Detect(ctx context.Context) CLIStatus {
	if _, err := exec.LookPath(r.binary); err != nil {
		return CLIStatus{}
	}
	res, err := r.Run(ctx, r.binary, []string{"auth", "status"}, 10*time.Second)
	return CLIStatus{Available: true, Authenticated: err == nil && res.ExitCode == 0}
}

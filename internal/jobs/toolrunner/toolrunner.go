// Package toolrunner invokes the external analysis executables. It owns the
// subprocess contract: argv construction is the caller's job, the runner pins
// the working directory, captures output, and maps exit codes to errors.
package toolrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

// ErrTimeout marks a run killed by the configured deadline.
var ErrTimeout = errors.New("tool run timed out")

// ExitError reports a non-zero exit with enough context for a user-facing
// job error message.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with return code %d -- please check your inputs, and contact the API developer if issues persist.", e.Tool, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " (" + truncate(s, 500) + ")"
	}
	return msg
}

type Invocation struct {
	// Tool is a short human-readable name used in error messages.
	Tool       string
	Executable string
	Args       []string
	// WorkDir must be a job-private scratch directory.
	WorkDir string
	// Timeout of zero means no deadline.
	Timeout time.Duration
}

type Result struct {
	Stdout string
	Stderr string
}

type Runner struct {
	log *logger.Logger
}

func New(baseLog *logger.Logger) *Runner {
	return &Runner{log: baseLog.With("component", "ToolRunner")}
}

// Run blocks until the subprocess exits. Exit code zero returns the captured
// output; any other exit code returns an *ExitError, and a deadline hit
// returns an error wrapping ErrTimeout.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.Executable == "" {
		return nil, fmt.Errorf("tool %q is not configured", inv.Tool)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Executable, inv.Args...)
	cmd.Dir = inv.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Info("Running tool", "tool", inv.Tool, "executable", inv.Executable, "workdir", inv.WorkDir)
	start := time.Now()
	err := cmd.Run()
	r.log.Info("Tool finished", "tool", inv.Tool, "duration_ms", time.Since(start).Milliseconds(), "error", err)

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: %s did not finish within %s", ErrTimeout, inv.Tool, inv.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Tool: inv.Tool, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("run %s: %w", inv.Tool, err)
	}

	return &Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

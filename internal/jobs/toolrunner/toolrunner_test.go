package toolrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/biographdb/biograph-backend/internal/platform/logger"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	return New(log)
}

func TestRunCapturesOutput(t *testing.T) {
	r := newTestRunner(t)

	res, err := r.Run(context.Background(), Invocation{
		Tool:       "echo",
		Executable: "/bin/sh",
		Args:       []string{"-c", "echo out; echo err >&2"},
		WorkDir:    t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, "out\n", res.Stdout)
	require.Equal(t, "err\n", res.Stderr)
}

func TestRunPinsWorkDir(t *testing.T) {
	r := newTestRunner(t)
	dir := t.TempDir()

	_, err := r.Run(context.Background(), Invocation{
		Tool:       "touch",
		Executable: "/bin/sh",
		Args:       []string{"-c", "echo data > produced.txt"},
		WorkDir:    dir,
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "produced.txt"))
	require.NoError(t, err, "output must land in the invocation workdir")
}

func TestRunExitCode(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.Run(context.Background(), Invocation{
		Tool:       "failing-tool",
		Executable: "/bin/sh",
		Args:       []string{"-c", "echo broken input >&2; exit 3"},
		WorkDir:    t.TempDir(),
	})
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 3, exitErr.Code)
	require.Equal(t, "failing-tool", exitErr.Tool)
	require.Contains(t, err.Error(), "exited with return code 3")
	require.Contains(t, err.Error(), "broken input")
}

func TestRunTimeout(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.Run(context.Background(), Invocation{
		Tool:       "sleeper",
		Executable: "/bin/sh",
		Args:       []string{"-c", "sleep 5"},
		WorkDir:    t.TempDir(),
		Timeout:    50 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestRunUnconfiguredExecutable(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.Run(context.Background(), Invocation{Tool: "missing"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not configured")
}

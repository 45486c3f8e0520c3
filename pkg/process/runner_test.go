package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRunner() *LocalRunner {
	return NewLocalRunner(Config{Timeout: 5 * time.Second, Logger: zerolog.Nop()})
}

func TestLocalRunnerPipesStdin(t *testing.T) {
	runner := newTestRunner()

	result, err := runner.Run(context.Background(), Request{
		Args:  []string{"/bin/sh", "-c", "cat"},
		Stdin: []byte("hello judge"),
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, "hello judge", string(result.Stdout))
	require.False(t, result.TimedOut)
}

func TestLocalRunnerReportsExitCode(t *testing.T) {
	runner := newTestRunner()

	result, err := runner.Run(context.Background(), Request{
		Args: []string{"/bin/sh", "-c", "echo boom >&2; exit 3"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.ExitCode)
	require.Equal(t, "boom\n", string(result.Stderr))
}

func TestLocalRunnerTimeout(t *testing.T) {
	runner := newTestRunner()

	start := time.Now()
	result, err := runner.Run(context.Background(), Request{
		Args:    []string{"/bin/sh", "-c", "sleep 5"},
		Timeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTimedOut))
	require.True(t, result.TimedOut)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestLocalRunnerParentCancellation(t *testing.T) {
	runner := newTestRunner()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result, err := runner.Run(ctx, Request{Args: []string{"/bin/sh", "-c", "sleep 5"}})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, result.TimedOut)
}

func TestLocalRunnerCapsOutput(t *testing.T) {
	runner := newTestRunner()

	result, err := runner.Run(context.Background(), Request{
		Args:           []string{"/bin/sh", "-c", "printf '0123456789abcdef'"},
		MaxOutputBytes: 8,
	})
	require.NoError(t, err)
	require.True(t, result.OutputTruncated)
	require.Equal(t, "01234567", string(result.Stdout))
}

func TestLocalRunnerCapsStderrWithoutTruncatingOutput(t *testing.T) {
	runner := newTestRunner()

	result, err := runner.Run(context.Background(), Request{
		Args:           []string{"/bin/sh", "-c", "printf ok; printf '0123456789abcdef' >&2"},
		MaxOutputBytes: 8,
	})
	require.NoError(t, err)
	require.False(t, result.OutputTruncated)
	require.Equal(t, "ok", string(result.Stdout))
	require.Len(t, result.Stderr, 8)
}

func TestLocalRunnerTimeoutKillsBackgroundChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process groups are unix only")
	}
	runner := newTestRunner()
	marker := filepath.Join(t.TempDir(), "alive")

	result, err := runner.Run(context.Background(), Request{
		Args:    []string{"/bin/sh", "-c", "(sleep 1; echo alive > " + marker + ") & sleep 5"},
		Timeout: 300 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrTimedOut)
	require.True(t, result.TimedOut)

	time.Sleep(1500 * time.Millisecond)
	_, statErr := os.Stat(marker)
	require.True(t, os.IsNotExist(statErr), "background child outlived the run")
}

func TestLocalRunnerExitKillsDetachedChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process groups are unix only")
	}
	runner := newTestRunner()
	marker := filepath.Join(t.TempDir(), "alive")

	result, err := runner.Run(context.Background(), Request{
		Args: []string{"/bin/sh", "-c", "(sleep 1; echo alive > " + marker + ") >/dev/null 2>&1 </dev/null & exit 0"},
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)

	time.Sleep(1500 * time.Millisecond)
	_, statErr := os.Stat(marker)
	require.True(t, os.IsNotExist(statErr), "detached child outlived the run")
}

func TestLocalRunnerRejectsEmptyCommand(t *testing.T) {
	runner := newTestRunner()

	_, err := runner.Run(context.Background(), Request{})
	require.ErrorIs(t, err, ErrEmptyCommand)
}

func TestLocalRunnerMissingExecutable(t *testing.T) {
	runner := newTestRunner()

	_, err := runner.Run(context.Background(), Request{Args: []string{"/nonexistent/interpreter"}})
	require.ErrorIs(t, err, ErrStartFailed)
	require.False(t, errors.Is(err, ErrTimedOut))
	require.True(t, strings.Contains(err.Error(), "/nonexistent/interpreter"))
}

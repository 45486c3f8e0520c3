package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "judge",
		Subsystem: "process",
		Name:      "run_duration_seconds",
		Help:      "Duration of spawned child processes",
		Buckets:   prometheus.DefBuckets,
	}, []string{"label"})

	runTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "process",
		Name:      "run_timeouts_total",
		Help:      "Number of child processes killed at their deadline",
	}, []string{"label"})

	runFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "process",
		Name:      "run_failures_total",
		Help:      "Number of child processes that could not be started or waited on",
	}, []string{"label"})
)

var (
	// ErrTimedOut is returned when a process is killed at its wall-clock deadline.
	ErrTimedOut = errors.New("process timed out")
	// ErrEmptyCommand is returned when a request carries no executable.
	ErrEmptyCommand = errors.New("command is required")
	// ErrStartFailed is returned when the executable could not be launched.
	ErrStartFailed = errors.New("process could not be started")
)

const defaultWaitDelay = 500 * time.Millisecond

// Runner spawns a single child process with a bounded wall-clock time.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Request describes one process invocation.
type Request struct {
	Args           []string
	Stdin          []byte
	Dir            string
	Timeout        time.Duration
	MaxOutputBytes int64
	Label          string
}

// Result summarises the outcome of a process invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	TimedOut bool
	// OutputTruncated reports that stdout hit the cap. Stderr is capped
	// silently.
	OutputTruncated bool
}

// Config groups runner defaults applied when a request leaves them unset.
type Config struct {
	Timeout        time.Duration
	MaxOutputBytes int64
	WaitDelay      time.Duration
	Logger         zerolog.Logger
}

// LocalRunner executes commands directly on the host.
type LocalRunner struct {
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewLocalRunner constructs a host process runner.
func NewLocalRunner(cfg Config) *LocalRunner {
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &LocalRunner{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/uva-judge/pkg/process"),
		logger: logger.With().Str("component", "process_runner").Logger(),
	}
}

// Run starts the command, feeds it stdin and waits for it to exit or hit its deadline.
// A non-zero exit status is reported through Result.ExitCode, not as an error.
func (r *LocalRunner) Run(parent context.Context, req Request) (Result, error) {
	if len(req.Args) == 0 || req.Args[0] == "" {
		return Result{}, ErrEmptyCommand
	}

	label := req.Label
	if label == "" {
		label = "default"
	}

	ctx, span := r.tracer.Start(parent, "process.run", trace.WithAttributes(
		attribute.String("process.command", req.Args[0]),
		attribute.String("process.label", label),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	limit := req.MaxOutputBytes
	if limit <= 0 {
		limit = r.cfg.MaxOutputBytes
	}

	stdout := newCappedBuffer(limit)
	stderr := newCappedBuffer(limit)

	cmd := exec.CommandContext(runCtx, req.Args[0], req.Args[1:]...)
	cmd.Dir = req.Dir
	cmd.Stdin = bytes.NewReader(req.Stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.cfg.WaitDelay
	isolateProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	killProcessGroup(cmd)
	runDuration.WithLabelValues(label).Observe(duration.Seconds())

	result := Result{
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		Duration:        duration,
		OutputTruncated: stdout.Truncated(),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.TimedOut = true
		runTimeouts.WithLabelValues(label).Inc()
		span.SetStatus(codes.Error, "process timed out")
		return result, fmt.Errorf("%w after %s", ErrTimedOut, timeout)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		span.RecordError(ctxErr)
		span.SetStatus(codes.Error, ctxErr.Error())
		return result, ctxErr
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		span.SetAttributes(attribute.Int("process.exit_code", result.ExitCode))
		return result, nil
	}

	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		r.logger.Warn().Str("command", req.Args[0]).Msg("process exited with output pipes still open")
		return result, nil
	}

	runFailures.WithLabelValues(label).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if cmd.Process == nil {
		return result, fmt.Errorf("%w: %s: %v", ErrStartFailed, req.Args[0], err)
	}
	return result, fmt.Errorf("run %s: %w", req.Args[0], err)
}

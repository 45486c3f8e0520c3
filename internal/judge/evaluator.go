package judge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/uva-judge/pkg/process"
)

// Config groups evaluator settings.
type Config struct {
	WorkDirectory  string
	MaxWorkers     int
	MaxOutputBytes int64
	CompileTimeout time.Duration
}

// Evaluator turns a submission into a single verdict.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Verdict, error)
}

type evaluator struct {
	cfg       Config
	runner    process.Runner
	registry  *Registry
	scheduler *Scheduler
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewEvaluator wires the judging pipeline.
func NewEvaluator(cfg Config, runner process.Runner, registry *Registry, logger zerolog.Logger) Evaluator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &evaluator{
		cfg:       cfg,
		runner:    runner,
		registry:  registry,
		scheduler: &Scheduler{MaxWorkers: cfg.MaxWorkers},
		tracer:    otel.Tracer("github.com/noah-isme/uva-judge/internal/judge"),
		logger:    logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate stages, scans, compiles and runs the submission. Faults caused by
// the submission become verdicts. Configuration faults, such as a toolchain
// that cannot be started, I/O faults and cancellation are returned as errors.
func (e *evaluator) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	ctx, span := e.tracer.Start(ctx, "judge.evaluate", trace.WithAttributes(
		attribute.String("judge.problem_id", req.Problem.ID),
		attribute.String("judge.language", req.Language.Name),
		attribute.Int("judge.runs", len(req.Problem.Runs)),
	))
	defer span.End()

	logger := e.logger.With().
		Str("problem_id", req.Problem.ID).
		Str("language", req.Language.Name).
		Logger()

	if _, ok := e.registry.Kind(req.Language.Name); !ok {
		return Reject(fmt.Sprintf("Language %s not implemented.", req.Language.Name)), nil
	}
	if len(req.Problem.Runs) == 0 {
		return Reject("Problem has no runs configured."), nil
	}

	workspace, err := NewWorkspace(e.cfg.WorkDirectory, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, err
	}
	defer func() {
		if err := workspace.Destroy(); err != nil {
			logger.Warn().Err(err).Msg("workspace teardown failed")
		}
	}()

	staged, err := workspace.Stage(req.Submission.Filename, req.Submission.Content)
	if err != nil {
		if errors.Is(err, ErrInvalidFilename) {
			return Reject("Invalid file name."), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, err
	}

	construct, found, err := ScanRestricted(staged, req.Language.Restricted)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, err
	}
	if found {
		logger.Info().Str("construct", construct).Msg("restricted construct found")
		return Verdict{
			Code:        RestrictedFunction,
			Description: fmt.Sprintf("Restricted construct %q is not allowed.", construct),
		}, nil
	}

	adapter, err := e.registry.Adapter(req.Language, e.runner, e.cfg.CompileTimeout)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := adapter.Compile(ctx, staged); err != nil {
		if errors.Is(err, ErrConfiguration) || ctx.Err() != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Verdict{}, err
		}
		logger.Info().Err(err).Msg("compilation failed")
		verdict := Verdict{Code: CompileError, Trace: err.Error()}
		var failure *CompileFailure
		if errors.As(err, &failure) {
			verdict.Trace = failure.Output
			verdict.Transient = failure.TimedOut
		}
		return verdict, nil
	}

	executor := &CaseExecutor{
		Runner:         e.runner,
		Command:        adapter.RunCommand(staged),
		Dir:            filepath.Dir(staged),
		TimeLimit:      req.Problem.TimeLimit,
		MaxOutputBytes: e.cfg.MaxOutputBytes,
		Tolerant:       req.Problem.Tolerant,
		Label:          req.Language.Name,
	}

	outcome := e.scheduler.Run(ctx, workspace, req.Problem.Runs, executor.Execute)
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return Verdict{}, err
	}
	verdict := Verdict{Code: outcome.Code, Cases: outcome.Cases}
	if outcome.Deciding < 0 {
		return verdict, nil
	}

	deciding := outcome.Cases[outcome.Deciding]
	if errors.Is(deciding.Err, process.ErrStartFailed) {
		err := fmt.Errorf("%w: %v", ErrConfiguration, deciding.Err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verdict{}, err
	}
	switch verdict.Code {
	case RuntimeError, OutputLimitExceeded:
		verdict.Trace = deciding.Trace
	case TimeLimitExceeded:
		verdict.Description = fmt.Sprintf("Run %d exceeded the time limit of %s.", deciding.Index+1, req.Problem.TimeLimit)
	case WrongAnswer, PresentationError:
		verdict.Description = fmt.Sprintf("Output of run %d did not match.", deciding.Index+1)
	}

	if req.Debug {
		verdict.Stdout = deciding.Stdout
		verdict.Stderr = deciding.Stderr
	}

	span.SetAttributes(attribute.String("judge.verdict", string(verdict.Code)))
	logger.Debug().Str("verdict", string(verdict.Code)).Int("cases_run", len(outcome.Cases)).Msg("submission evaluated")
	return verdict, nil
}

package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/uva-judge/pkg/process"
)

// CaseFunc runs one test case and grades it.
type CaseFunc func(ctx context.Context, index int, tc TestCase) CaseVerdict

// CaseExecutor runs a prepared command against single test cases.
type CaseExecutor struct {
	Runner         process.Runner
	Command        []string
	Dir            string
	TimeLimit      time.Duration
	MaxOutputBytes int64
	Tolerant       bool
	Label          string
}

// Execute feeds the case input to the command and grades what it prints.
func (e *CaseExecutor) Execute(ctx context.Context, index int, tc TestCase) CaseVerdict {
	verdict := CaseVerdict{Index: index, State: CaseRunning}

	result, err := e.Runner.Run(ctx, process.Request{
		Args:           e.Command,
		Stdin:          []byte(NormalizeText(tc.Input)),
		Dir:            e.Dir,
		Timeout:        e.TimeLimit,
		MaxOutputBytes: e.MaxOutputBytes,
		Label:          e.Label,
	})
	verdict.Duration = result.Duration
	verdict.Stdout = string(result.Stdout)
	verdict.Stderr = string(result.Stderr)

	switch {
	case errors.Is(err, process.ErrTimedOut):
		verdict.State = CaseTimedOut
		verdict.Code = TimeLimitExceeded
		verdict.Trace = err.Error()
	case err != nil:
		verdict.State = CaseFailed
		verdict.Code = RuntimeError
		verdict.Trace = err.Error()
		verdict.Err = err
	case result.OutputTruncated:
		verdict.State = CaseFailed
		verdict.Code = OutputLimitExceeded
		verdict.Trace = fmt.Sprintf("output exceeded %d bytes", e.MaxOutputBytes)
	case result.ExitCode != 0:
		verdict.State = CaseFailed
		verdict.Code = RuntimeError
		verdict.Trace = strings.TrimSpace(verdict.Stderr)
		if verdict.Trace == "" {
			verdict.Trace = fmt.Sprintf("exit status %d", result.ExitCode)
		}
	default:
		verdict.State = CaseVerified
		verdict.Code = Grade(NormalizeOutput(result.Stdout), tc.AcceptedOutputs, e.Tolerant)
	}
	return verdict
}

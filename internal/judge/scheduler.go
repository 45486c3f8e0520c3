package judge

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Tracker registers outstanding work that must finish before cleanup.
type Tracker interface {
	Track() (done func())
}

// Outcome is the aggregated result of a scheduled problem run.
type Outcome struct {
	Code Code
	// Cases holds every case consumed by aggregation, in run order.
	Cases []CaseVerdict
	// Deciding indexes into Cases and points at the case that set Code.
	Deciding int
}

// Scheduler runs test cases on a bounded pool and aggregates them in order.
type Scheduler struct {
	MaxWorkers int
}

// Run dispatches every case and folds results in run order. The first case
// that is neither AC nor AE stops aggregation and cancels the cases that
// are still queued or running. Every case is registered with tracker before
// Run returns so the caller can wait for stragglers.
func (s *Scheduler) Run(ctx context.Context, tracker Tracker, cases []TestCase, exec CaseFunc) Outcome {
	if len(cases) == 0 {
		return Outcome{Code: Accepted, Deciding: -1}
	}

	workers := s.MaxWorkers
	if workers <= 0 {
		workers = len(cases)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	futures := make([]chan CaseVerdict, len(cases))
	dones := make([]func(), len(cases))
	for i := range cases {
		futures[i] = make(chan CaseVerdict, 1)
		dones[i] = tracker.Track()
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(workers)
		for i, tc := range cases {
			g.Go(func() error {
				defer dones[i]()
				if err := runCtx.Err(); err != nil {
					futures[i] <- CaseVerdict{Index: i, State: CaseSkipped, Code: RuntimeError, Trace: err.Error()}
					return nil
				}
				futures[i] <- exec(runCtx, i, tc)
				return nil
			})
		}
		_ = g.Wait()
	}()

	outcome := Outcome{Code: Accepted}
	for i := range cases {
		verdict := <-futures[i]
		outcome.Cases = append(outcome.Cases, verdict)
		outcome.Deciding = len(outcome.Cases) - 1

		if verdict.Code == Accepted {
			continue
		}
		outcome.Code = verdict.Code
		if verdict.Code == AcceptedPresentationError {
			continue
		}
		break
	}

	if outcome.Code == AcceptedPresentationError {
		for i := len(outcome.Cases) - 1; i >= 0; i-- {
			if outcome.Cases[i].Code == AcceptedPresentationError {
				outcome.Deciding = i
				break
			}
		}
	}
	return outcome
}

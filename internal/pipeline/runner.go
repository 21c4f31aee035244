// internal/pipeline/runner.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/artifacts"
	"github.com/xkilldash9x/linkrunner/internal/executor"
)

const captureTimeout = 30 * time.Second

// Runner executes stages in order against one RunContext and owns the
// browser for the run.
type Runner struct {
	rc       *RunContext
	stages   []Stage
	recorder *artifacts.Recorder
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a Runner. recorder may be nil to disable artifacts.
func New(rc *RunContext, recorder *artifacts.Recorder, stages []Stage) (*Runner, error) {
	if err := rc.validate(); err != nil {
		return nil, fmt.Errorf("cannot initialize runner: %w", err)
	}
	if len(stages) == 0 {
		return nil, errors.New("cannot initialize runner without stages")
	}
	return &Runner{
		rc:       rc,
		stages:   stages,
		recorder: recorder,
		logger:   rc.Logger.Named("pipeline"),
	}, nil
}

// Run executes every stage and then cleans up. The returned error is nil when
// all required stages succeeded, ctx.Err() on cancellation and a
// *StageError otherwise. The report is returned in every case.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC()}
	if r.recorder != nil {
		report.RunID = r.recorder.RunID()
	}
	r.logger.Info("Run started.", zap.String("run_id", report.RunID), zap.Int("stages", len(r.stages)))

	runErr := r.runStages(ctx, report)

	start := time.Now()
	cleanup := StageReport{Name: StageCleanup, Required: true, Status: StatusOK}
	if err := r.Close(ctx); err != nil {
		// Cleanup failures are reported but never replace the run's outcome.
		cleanup.Status = StatusWarned
		cleanup.Error = err.Error()
	}
	cleanup.Duration = time.Since(start)
	report.add(cleanup)

	switch {
	case runErr == nil:
		report.Status = RunSucceeded
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		report.Status = RunCancelled
	default:
		report.Status = RunFailed
	}
	report.FinishedAt = time.Now().UTC()
	report.log(r.logger)

	if r.recorder != nil {
		if path, err := r.recorder.WriteReport(report); err != nil {
			r.logger.Warn("Could not write run report.", zap.Error(err))
		} else {
			r.logger.Info("Run report written.", zap.String("path", path))
		}
	}
	return report, runErr
}

func (r *Runner) runStages(ctx context.Context, report *Report) error {
	for i, st := range r.stages {
		if err := ctx.Err(); err != nil {
			r.skip(report, r.stages[i:])
			return err
		}

		log := r.logger.With(zap.String("stage", st.Name))
		log.Info("Stage started.")
		start := time.Now()
		err := st.Run(ctx, r.rc)
		sr := StageReport{Name: st.Name, Required: st.Required, Duration: time.Since(start)}

		if err == nil {
			sr.Status = StatusOK
			report.add(sr)
			log.Info("Stage completed.", zap.Duration("elapsed", sr.Duration))
			continue
		}

		sr.Error = err.Error()
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			sr.Status = StatusCancelled
			report.add(sr)
			r.skip(report, r.stages[i+1:])
			log.Warn("Stage cancelled.")
			return ctx.Err()
		}

		sr.Artifacts = r.capture(ctx, st.Name)
		blocked := errors.Is(err, executor.ErrBlocked)
		if !st.Required && !blocked {
			sr.Status = StatusWarned
			report.add(sr)
			log.Warn("Optional stage failed; continuing.", zap.Error(err))
			continue
		}

		sr.Status = StatusFailed
		report.add(sr)
		r.skip(report, r.stages[i+1:])
		if blocked {
			log.Error("Destination rejected the automated browser; aborting.", zap.Error(err))
		} else {
			log.Error("Required stage failed; aborting.", zap.Error(err))
		}
		return &StageError{Stage: st.Name, Err: err}
	}
	return nil
}

func (r *Runner) skip(report *Report, stages []Stage) {
	for _, st := range stages {
		report.add(StageReport{Name: st.Name, Required: st.Required, Status: StatusSkipped})
	}
}

// capture stores the page state at a failure. It runs on a context detached
// from cancellation so a failing run still leaves evidence behind.
func (r *Runner) capture(ctx context.Context, name string) []string {
	page := r.rc.Page()
	if r.recorder == nil || page == nil {
		return nil
	}
	capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()
	paths, _ := r.recorder.Capture(capCtx, name, page)
	return paths
}

// Close releases the browser. It is safe to call from failure handlers and
// deferred calls alike; only the first call does any work.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.rc.closeBrowser(ctx); err != nil {
		r.logger.Warn("Cleanup finished with errors.", zap.Error(err))
		return err
	}
	r.logger.Debug("Cleanup finished.")
	return nil
}

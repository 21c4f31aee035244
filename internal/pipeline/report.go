// internal/pipeline/report.go
package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// StageStatus is how a stage ended.
type StageStatus string

const (
	StatusOK        StageStatus = "ok"
	StatusWarned    StageStatus = "warned"
	StatusFailed    StageStatus = "failed"
	StatusCancelled StageStatus = "cancelled"
	StatusSkipped   StageStatus = "skipped"
)

// StageReport records one stage of a run.
type StageReport struct {
	Name      string        `json:"name"`
	Required  bool          `json:"required"`
	Status    StageStatus   `json:"status"`
	Duration  time.Duration `json:"-"`
	Elapsed   string        `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
}

// RunStatus summarizes a whole run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Report is written as report.json into the run's artifact directory.
type Report struct {
	RunID      string        `json:"run_id,omitempty"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageReport `json:"stages"`
}

func (r *Report) add(sr StageReport) {
	sr.Elapsed = sr.Duration.Round(time.Millisecond).String()
	r.Stages = append(r.Stages, sr)
}

// Stage returns the report for name, if it ran.
func (r *Report) Stage(name string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}

func (r *Report) log(logger *zap.Logger) {
	for _, s := range r.Stages {
		fields := []zap.Field{
			zap.String("stage", s.Name),
			zap.String("status", string(s.Status)),
			zap.String("elapsed", s.Elapsed),
		}
		if s.Error != "" {
			fields = append(fields, zap.String("error", s.Error))
		}
		logger.Info("Stage summary.", fields...)
	}
	logger.Info("Run finished.",
		zap.String("status", string(r.Status)),
		zap.Duration("elapsed", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))
}

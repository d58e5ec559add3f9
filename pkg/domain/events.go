package domain

import (
	"context"
	"time"
)

// RunEvent marks the start or end of a whole pipeline run.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Pipeline  string    `json:"pipeline"`
	Status    RunStatus `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JobEvent marks the start or end of one matrix job.
type JobEvent struct {
	RunID     string    `json:"run_id"`
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StageEvent marks the start or end of one stage within a job.
type StageEvent struct {
	RunID    string        `json:"run_id"`
	JobID    string        `json:"job_id"`
	Stage    string        `json:"stage"`
	ExitCode int           `json:"exit_code,omitempty"`
	Failed   bool          `json:"failed,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for run observability. All fields are
// optional; nil hooks are skipped.
type LifecycleHooks struct {
	OnRunStart    func(context.Context, *RunEvent)
	OnRunFinish   func(context.Context, *RunEvent)
	OnJobStart    func(context.Context, *JobEvent)
	OnJobFinish   func(context.Context, *JobEvent)
	OnStageStart  func(context.Context, *StageEvent)
	OnStageFinish func(context.Context, *StageEvent)
}

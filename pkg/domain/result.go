package domain

import "time"

// JobStatus describes where a job is in its lifecycle.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobAborted   JobStatus = "aborted"
)

// RunStatus is the aggregate verdict over all jobs of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// StageLog records one executed stage for reporting. Output is the combined
// stdout/stderr of the subprocess with secret values already redacted.
type StageLog struct {
	Stage    string        `json:"stage"`
	Output   string        `json:"output,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// JobResult is the terminal record of one job. It is immutable once the
// job's stage sequence finishes or short-circuits.
type JobResult struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`

	// FailedStage and ExitCode are set when Status is JobFailed because a
	// stage's subprocess exited non-zero or could not be spawned.
	FailedStage string `json:"failed_stage,omitempty"`
	ExitCode    int    `json:"exit_code,omitempty"`

	// Reason carries the human-readable failure cause for non-exit-code
	// failures (provisioning, missing secret, timeout, abort).
	Reason string `json:"reason,omitempty"`

	Stages []StageLog `json:"stages,omitempty"`
}

// RunResult aggregates the outcome of every expanded job of one trigger.
type RunResult struct {
	ID         string      `json:"id"`
	Pipeline   string      `json:"pipeline"`
	Event      Event       `json:"event"`
	Status     RunStatus   `json:"status"`
	Jobs       []JobResult `json:"jobs,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// ExecutionContext is the per-job mutable environment handed to stage
// subprocesses. Setup stages extend Path; nothing outside the owning job
// ever touches it.
type ExecutionContext struct {
	// Env maps variable names to values, including injected secrets for the
	// stage currently executing.
	Env map[string]string

	// Path lists tool directories prepended to the subprocess PATH, most
	// recently provisioned first.
	Path []string

	// WorkDir is the working directory for stage subprocesses.
	WorkDir string
}

// NewExecutionContext creates a fresh context seeded with the pipeline-level
// environment. Each job gets its own instance.
func NewExecutionContext(baseEnv map[string]string, workDir string) *ExecutionContext {
	env := make(map[string]string, len(baseEnv))
	for k, v := range baseEnv {
		env[k] = v
	}
	return &ExecutionContext{Env: env, WorkDir: workDir}
}

// PrependPath registers a provisioned tool directory ahead of existing ones.
func (c *ExecutionContext) PrependPath(dir string) {
	c.Path = append([]string{dir}, c.Path...)
}

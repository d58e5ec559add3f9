// Package runtime contains the core run coordinator and the per-job stage
// runner. The coordinator expands the matrix and fans jobs out; each job
// executes its stages strictly sequentially and fail-fast.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gantry-ci/gantry/internal/logging"
	"github.com/gantry-ci/gantry/internal/matrix"
	"github.com/gantry-ci/gantry/pkg/domain"
	"github.com/gantry-ci/gantry/pkg/ports"
	"github.com/gantry-ci/gantry/pkg/secrets"
)

// Engine coordinates one pipeline definition's runs.
type Engine struct {
	def         *domain.Definition
	executor    ports.CommandExecutor
	provisioner ports.Provisioner
	secrets     *secrets.Store
	hooks       domain.LifecycleHooks
	logger      *slog.Logger

	stageTimeout time.Duration
	maxParallel  int
	workDir      string
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSecrets sets the process-wide secret store shared by all jobs.
func WithSecrets(store *secrets.Store) EngineOption {
	return func(e *Engine) {
		e.secrets = store
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithStageTimeout bounds every stage subprocess and provisioning fetch.
// Zero means no per-stage budget.
func WithStageTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.stageTimeout = d
	}
}

// WithMaxParallel caps the number of matrix jobs running at once.
// Zero or negative means all jobs run concurrently.
func WithMaxParallel(n int) EngineOption {
	return func(e *Engine) {
		e.maxParallel = n
	}
}

// WithWorkDir sets the working directory for stage subprocesses.
func WithWorkDir(dir string) EngineOption {
	return func(e *Engine) {
		e.workDir = dir
	}
}

// NewEngine creates a run coordinator for one parsed definition.
func NewEngine(def *domain.Definition, executor ports.CommandExecutor, provisioner ports.Provisioner, opts ...EngineOption) *Engine {
	e := &Engine{
		def:         def,
		executor:    executor,
		provisioner: provisioner,
		secrets:     secrets.FromMap(nil),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Definition exposes the read-only pipeline definition.
func (e *Engine) Definition() *domain.Definition { return e.def }

// Run expands the matrix and executes every job. Jobs are independent: a
// failed sibling never stops the others, and the run is reported successful
// only when every job succeeded. The only error return is a pre-flight
// ConfigError from matrix expansion; everything downstream lands in the
// RunResult.
func (e *Engine) Run(ctx context.Context, runID string, event domain.Event) (*domain.RunResult, error) {
	result := &domain.RunResult{
		ID:        runID,
		Pipeline:  e.def.Name,
		Event:     event,
		StartedAt: time.Now(),
	}

	if !e.def.Triggers(event.Type) {
		e.logger.Info("event ignored", "run", runID, "event", event.Type)
		result.Status = domain.RunSkipped
		result.FinishedAt = time.Now()
		return result, nil
	}

	specs, err := matrix.Expand(e.def)
	if err != nil {
		return nil, err
	}

	e.emitRunStart(ctx, result)
	e.logger.Info("run started", "run", runID, "event", event.Type, "jobs", len(specs))

	results := make([]domain.JobResult, len(specs))

	limit := e.maxParallel
	if limit <= 0 || limit > len(specs) {
		limit = len(specs)
	}
	sem := make(chan struct{}, max(limit, 1))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec domain.JobSpec) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			runner := &jobRunner{
				executor:     e.executor,
				provisioner:  e.provisioner,
				secrets:      e.secrets,
				hooks:        e.hooks,
				logger:       e.logger,
				stageTimeout: e.stageTimeout,
				baseEnv:      e.def.Env,
				workDir:      e.workDir,
				runID:        runID,
			}
			results[i] = runner.run(ctx, spec)
		}(i, spec)
	}
	wg.Wait()

	result.Jobs = results
	result.Status = domain.RunSucceeded
	for _, jr := range results {
		if jr.Status != domain.JobSucceeded {
			result.Status = domain.RunFailed
			break
		}
	}
	result.FinishedAt = time.Now()

	e.logger.Info("run finished", "run", runID, "status", result.Status)
	e.emitRunFinish(ctx, result)
	return result, nil
}

func (e *Engine) emitRunStart(ctx context.Context, result *domain.RunResult) {
	if e.hooks.OnRunStart != nil {
		e.hooks.OnRunStart(ctx, &domain.RunEvent{
			RunID: result.ID, Pipeline: result.Pipeline, Timestamp: result.StartedAt,
		})
	}
}

func (e *Engine) emitRunFinish(ctx context.Context, result *domain.RunResult) {
	if e.hooks.OnRunFinish != nil {
		e.hooks.OnRunFinish(ctx, &domain.RunEvent{
			RunID: result.ID, Pipeline: result.Pipeline, Status: result.Status, Timestamp: result.FinishedAt,
		})
	}
}

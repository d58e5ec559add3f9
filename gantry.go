package gantry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gantry-ci/gantry/internal/adapters/memory"
	"github.com/gantry-ci/gantry/internal/adapters/process"
	"github.com/gantry-ci/gantry/internal/config"
	"github.com/gantry-ci/gantry/internal/logging"
	"github.com/gantry-ci/gantry/internal/runtime"
	"github.com/gantry-ci/gantry/pkg/domain"
	"github.com/gantry-ci/gantry/pkg/ports"
	"github.com/gantry-ci/gantry/pkg/secrets"
)

// Version is the current gantry release.
var Version = "0.3.0"

// Engine is the high-level entry point for the gantry library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime     *runtime.Engine
	def         *domain.Definition
	store       ports.RunStore
	secrets     *secrets.Store
	executor    ports.CommandExecutor
	provisioner ports.Provisioner
	hooks       []domain.LifecycleHooks
	logger      *slog.Logger

	stageTimeout time.Duration
	maxParallel  int
	workDir      string

	Name string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSecrets injects the process-wide secret store. Without this option
// the store is populated from the process environment, restricted to the
// secret names the definition declares.
func WithSecrets(store *secrets.Store) Option {
	return func(e *Engine) {
		e.secrets = store
	}
}

// WithExecutor injects a custom command executor, bypassing the default
// local shell.
func WithExecutor(executor ports.CommandExecutor) Option {
	return func(e *Engine) {
		e.executor = executor
	}
}

// WithProvisioner injects the toolchain provisioner used by setup stages.
func WithProvisioner(p ports.Provisioner) Option {
	return func(e *Engine) {
		e.provisioner = p
	}
}

// WithStore sets the run result store. Defaults to an in-memory store.
func WithStore(store ports.RunStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLifecycleHooks registers observability hooks. The option can be given
// several times; all registered hooks fire.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks)
	}
}

// WithStageTimeout bounds each stage subprocess and provisioning fetch.
func WithStageTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.stageTimeout = d
	}
}

// WithMaxParallel caps concurrently running matrix jobs.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		e.maxParallel = n
	}
}

// WithWorkDir sets the working directory for stage subprocesses.
func WithWorkDir(dir string) Option {
	return func(e *Engine) {
		e.workDir = dir
	}
}

// New initializes a gantry Engine from a pipeline file. The definition is
// parsed and validated exactly once; a malformed document is a ConfigError
// and nothing runs.
func New(path string, opts ...Option) (*Engine, error) {
	def, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewFromDefinition(def, opts...)
}

// NewFromDefinition initializes an Engine from an already parsed definition.
func NewFromDefinition(def *domain.Definition, opts ...Option) (*Engine, error) {
	eng := &Engine{def: def, Name: def.Name}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.executor == nil {
		eng.executor = process.NewExecutor()
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.secrets == nil {
		// Populated at trigger time from the process environment, never
		// from the definition itself.
		eng.secrets = secrets.FromEnv(def.SecretNames()...)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	eng.logger = logging.WithRedaction(eng.logger, eng.secrets)
	if eng.Name != "" {
		eng.logger = eng.logger.With("pipeline", eng.Name)
	}

	eng.runtime = runtime.NewEngine(def, eng.executor, eng.provisioner,
		runtime.WithSecrets(eng.secrets),
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(mergeHooks(eng.hooks)),
		runtime.WithStageTimeout(eng.stageTimeout),
		runtime.WithMaxParallel(eng.maxParallel),
		runtime.WithWorkDir(eng.workDir),
	)
	return eng, nil
}

// Trigger reacts to one external event. Events whose type the definition
// does not list produce a skipped RunResult without starting any job. The
// terminal result is persisted to the configured store.
func (e *Engine) Trigger(ctx context.Context, event domain.Event) (*domain.RunResult, error) {
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())

	result, err := e.runtime.Run(ctx, runID, event)
	if err != nil {
		return nil, err
	}

	if result.Status != domain.RunSkipped {
		if err := e.store.Save(ctx, result); err != nil {
			e.logger.Warn("failed to persist run result", "run", runID, "err", err)
		}
	}
	return result, nil
}

// TriggerAsync starts a run in the background and returns its run ID
// immediately. The result lands in the store when the run finishes; ctx
// should outlive the caller's request (it cancels the run, not the reply).
func (e *Engine) TriggerAsync(ctx context.Context, event domain.Event) string {
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())

	go func() {
		result, err := e.runtime.Run(ctx, runID, event)
		if err != nil {
			e.logger.Error("run aborted pre-flight", "run", runID, "err", err)
			return
		}
		if result.Status == domain.RunSkipped {
			return
		}
		if err := e.store.Save(ctx, result); err != nil {
			e.logger.Warn("failed to persist run result", "run", runID, "err", err)
		}
	}()
	return runID
}

// Definition returns the read-only pipeline definition.
func (e *Engine) Definition() *domain.Definition { return e.def }

// Store returns the run result store.
func (e *Engine) Store() ports.RunStore { return e.store }

// mergeHooks fans one lifecycle event out to every registered hook set.
func mergeHooks(all []domain.LifecycleHooks) domain.LifecycleHooks {
	if len(all) == 1 {
		return all[0]
	}
	var merged domain.LifecycleHooks
	merged.OnRunStart = func(ctx context.Context, e *domain.RunEvent) {
		for _, h := range all {
			if h.OnRunStart != nil {
				h.OnRunStart(ctx, e)
			}
		}
	}
	merged.OnRunFinish = func(ctx context.Context, e *domain.RunEvent) {
		for _, h := range all {
			if h.OnRunFinish != nil {
				h.OnRunFinish(ctx, e)
			}
		}
	}
	merged.OnJobStart = func(ctx context.Context, e *domain.JobEvent) {
		for _, h := range all {
			if h.OnJobStart != nil {
				h.OnJobStart(ctx, e)
			}
		}
	}
	merged.OnJobFinish = func(ctx context.Context, e *domain.JobEvent) {
		for _, h := range all {
			if h.OnJobFinish != nil {
				h.OnJobFinish(ctx, e)
			}
		}
	}
	merged.OnStageStart = func(ctx context.Context, e *domain.StageEvent) {
		for _, h := range all {
			if h.OnStageStart != nil {
				h.OnStageStart(ctx, e)
			}
		}
	}
	merged.OnStageFinish = func(ctx context.Context, e *domain.StageEvent) {
		for _, h := range all {
			if h.OnStageFinish != nil {
				h.OnStageFinish(ctx, e)
			}
		}
	}
	return merged
}

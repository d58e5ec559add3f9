package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gantry-ci/gantry/pkg/domain"
	"github.com/gantry-ci/gantry/pkg/ports"
	"github.com/gantry-ci/gantry/pkg/secrets"
)

// jobRunner executes the stage sequence of a single JobSpec. One instance
// per job; it owns the job's ExecutionContext exclusively.
type jobRunner struct {
	executor     ports.CommandExecutor
	provisioner  ports.Provisioner
	secrets      *secrets.Store
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	stageTimeout time.Duration
	baseEnv      map[string]string
	workDir      string
	runID        string
}

// run drives the job state machine:
//
//	Pending -> Running(0) -> Running(i+1) on stage success
//	Running(i) -> Succeeded on success of the last stage
//	Running(i) -> Failed on the first stage failure (terminal)
//	Running(i) -> Aborted on external cancellation (terminal)
//
// The loop is a short-circuiting fold: the first failing stage produces the
// terminal result and no later stage ever executes.
func (r *jobRunner) run(ctx context.Context, spec domain.JobSpec) domain.JobResult {
	result := domain.JobResult{JobID: spec.ID, Status: domain.JobRunning}
	execCtx := domain.NewExecutionContext(r.baseEnv, r.workDir)

	r.emitJobStart(ctx, spec.ID)
	logger := r.logger.With("job", spec.ID)

	for _, stage := range spec.Stages {
		log, err := r.runStage(ctx, execCtx, spec, stage)
		if log != nil {
			result.Stages = append(result.Stages, *log)
		}

		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, context.Canceled):
			result.Status = domain.JobAborted
			result.Reason = fmt.Sprintf("aborted during stage %q", stage.Name)
		default:
			result.Status = domain.JobFailed
			result.FailedStage = stage.Name
			result.Reason = err.Error()
			var stageErr *domain.StageError
			if errors.As(err, &stageErr) {
				result.ExitCode = stageErr.ExitCode
			}
		}
		logger.Warn("job finished", "status", result.Status, "stage", stage.Name, "err", err)
		r.emitJobFinish(ctx, &result)
		return result
	}

	result.Status = domain.JobSucceeded
	logger.Info("job finished", "status", result.Status)
	r.emitJobFinish(ctx, &result)
	return result
}

// runStage executes one stage against the job's ExecutionContext. Setup
// stages call the provisioner and extend the command path; run stages spawn
// a subprocess. Any returned error is terminal for the job.
func (r *jobRunner) runStage(ctx context.Context, execCtx *domain.ExecutionContext, spec domain.JobSpec, stage domain.Stage) (*domain.StageLog, error) {
	r.emitStageStart(ctx, spec.ID, stage.Name)
	start := time.Now()

	// The per-stage budget covers both blocking paths: the provisioning
	// fetch and the subprocess.
	stageCtx := ctx
	if r.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		defer cancel()
	}

	if stage.Setup != "" {
		err := r.provision(stageCtx, execCtx, stage)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			err = &domain.StageError{Stage: stage.Name, ExitCode: -1, Timeout: true}
		case ctx.Err() != nil:
			err = context.Canceled
		}
		log := &domain.StageLog{Stage: stage.Name, Duration: time.Since(start)}
		if err != nil {
			log.ExitCode = -1
		}
		r.emitStageFinish(ctx, spec.ID, log, err != nil)
		return log, err
	}

	env, err := r.stageEnv(execCtx, spec, stage)
	if err != nil {
		// Missing secret: the job fails before the subprocess is spawned.
		log := &domain.StageLog{Stage: stage.Name, ExitCode: -1, Duration: time.Since(start)}
		r.emitStageFinish(ctx, spec.ID, log, true)
		return log, err
	}

	res, execErr := r.executor.Execute(stageCtx, ports.Command{
		Line: stage.Run,
		Env:  env,
		Dir:  execCtx.WorkDir,
	})

	log := &domain.StageLog{
		Stage:    stage.Name,
		Output:   r.secrets.Redact(res.Output),
		ExitCode: res.ExitCode,
		Duration: time.Since(start),
	}

	switch {
	case execErr == nil && res.ExitCode == 0:
		r.emitStageFinish(ctx, spec.ID, log, false)
		return log, nil
	case errors.Is(execErr, context.DeadlineExceeded) && ctx.Err() == nil:
		// The stage's own budget ran out; the job as a whole was not
		// cancelled. Reported as a stage failure variant.
		err = &domain.StageError{Stage: stage.Name, ExitCode: res.ExitCode, Timeout: true}
	case ctx.Err() != nil:
		err = context.Canceled
	case execErr != nil:
		err = &domain.StageError{Stage: stage.Name, ExitCode: res.ExitCode, Err: execErr}
	default:
		err = &domain.StageError{Stage: stage.Name, ExitCode: res.ExitCode}
	}

	r.emitStageFinish(ctx, spec.ID, log, true)
	return log, err
}

func (r *jobRunner) provision(ctx context.Context, execCtx *domain.ExecutionContext, stage domain.Stage) error {
	if r.provisioner == nil {
		return &domain.ProvisionError{Directive: stage.Setup, Err: errors.New("no provisioner configured")}
	}
	binDir, err := r.provisioner.Provision(ctx, stage.Setup)
	if err != nil {
		return err
	}
	execCtx.PrependPath(binDir)
	return nil
}

// stageEnv assembles the subprocess environment: pipeline env, stage env,
// declared secrets, and the command path. Secrets a stage does not declare
// are invisible to it.
func (r *jobRunner) stageEnv(execCtx *domain.ExecutionContext, spec domain.JobSpec, stage domain.Stage) ([]string, error) {
	merged := make(map[string]string, len(execCtx.Env)+len(stage.Env)+len(stage.Secrets)+2)
	for k, v := range execCtx.Env {
		merged[k] = v
	}
	for k, v := range stage.Env {
		merged[k] = v
	}
	if err := r.secrets.Inject(merged, stage.Secrets); err != nil {
		return nil, err
	}

	path := append([]string{}, execCtx.Path...)
	if ambient := os.Getenv("PATH"); ambient != "" {
		path = append(path, ambient)
	}
	merged["PATH"] = strings.Join(path, string(os.PathListSeparator))

	// Matrix bindings are exported for stage commands, GANTRY_MATRIX_<AXIS>.
	for _, b := range spec.Bindings {
		merged[matrixEnvName(b.Axis)] = b.Value.String()
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env, nil
}

func matrixEnvName(axis string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, axis)
	return "GANTRY_MATRIX_" + mapped
}

func (r *jobRunner) emitJobStart(ctx context.Context, jobID string) {
	if r.hooks.OnJobStart != nil {
		r.hooks.OnJobStart(ctx, &domain.JobEvent{
			RunID: r.runID, JobID: jobID, Status: domain.JobRunning, Timestamp: time.Now(),
		})
	}
}

func (r *jobRunner) emitJobFinish(ctx context.Context, result *domain.JobResult) {
	if r.hooks.OnJobFinish != nil {
		r.hooks.OnJobFinish(ctx, &domain.JobEvent{
			RunID: r.runID, JobID: result.JobID, Status: result.Status, Timestamp: time.Now(),
		})
	}
}

func (r *jobRunner) emitStageStart(ctx context.Context, jobID, stage string) {
	if r.hooks.OnStageStart != nil {
		r.hooks.OnStageStart(ctx, &domain.StageEvent{RunID: r.runID, JobID: jobID, Stage: stage})
	}
}

func (r *jobRunner) emitStageFinish(ctx context.Context, jobID string, log *domain.StageLog, failed bool) {
	if r.hooks.OnStageFinish != nil {
		r.hooks.OnStageFinish(ctx, &domain.StageEvent{
			RunID: r.runID, JobID: jobID, Stage: log.Stage,
			ExitCode: log.ExitCode, Failed: failed, Duration: log.Duration,
		})
	}
}

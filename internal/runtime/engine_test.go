package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-ci/gantry/internal/adapters/process"
	"github.com/gantry-ci/gantry/pkg/domain"
	"github.com/gantry-ci/gantry/pkg/ports"
	"github.com/gantry-ci/gantry/pkg/secrets"
)

// fakeExecutor records every invocation and returns scripted exit codes.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []ports.Command
	exitFor map[string]int // substring of the command line -> exit code
}

func (f *fakeExecutor) Execute(ctx context.Context, cmd ports.Command) (ports.ExecResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if ctx.Err() != nil {
		return ports.ExecResult{ExitCode: -1}, ctx.Err()
	}
	for fragment, code := range f.exitFor {
		if strings.Contains(cmd.Line, fragment) {
			return ports.ExecResult{Output: "scripted failure", ExitCode: code}, nil
		}
	}
	return ports.ExecResult{Output: "ok"}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExecutor) envOf(fragment string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.Contains(c.Line, fragment) {
			return c.Env
		}
	}
	return nil
}

// fakeProvisioner resolves every directive to a fixed directory.
type fakeProvisioner struct {
	dir  string
	err  error
	seen []string
}

func (f *fakeProvisioner) Provision(ctx context.Context, directive string) (string, error) {
	f.seen = append(f.seen, directive)
	if f.err != nil {
		return "", f.err
	}
	return f.dir, nil
}

func fiveStageDef() *domain.Definition {
	return &domain.Definition{
		Name: "library-ci",
		On:   []string{"push"},
		Axes: []domain.Axis{{Name: "python-version", Values: []domain.AxisValue{domain.StringValue("3.8")}}},
		Stages: []domain.Stage{
			{Name: "init", Run: "pip install -r requirements.txt"},
			{Name: "typecheck", Run: "mypy ."},
			{Name: "test", Run: "pytest"},
			{Name: "coverage-report", Run: "coverage xml"},
			{Name: "codecov-upload", Run: "codecov", Secrets: []string{"CODECOV_TOKEN"}},
		},
	}
}

func pushEvent() domain.Event {
	return domain.Event{Type: "push", Ref: "refs/heads/main"}
}

func TestEngine_Run_AllStagesSucceed(t *testing.T) {
	exe := &fakeExecutor{}
	eng := NewEngine(fiveStageDef(), exe, nil,
		WithSecrets(secrets.FromMap(map[string]string{"CODECOV_TOKEN": "tok"})))

	res, err := eng.Run(context.Background(), "run-1", pushEvent())
	require.NoError(t, err)

	assert.Equal(t, domain.RunSucceeded, res.Status)
	require.Len(t, res.Jobs, 1)
	job := res.Jobs[0]
	assert.Equal(t, "python-version=3.8", job.JobID)
	assert.Equal(t, domain.JobSucceeded, job.Status)
	assert.Len(t, job.Stages, 5)
	assert.Equal(t, 5, exe.callCount())
}

func TestEngine_Run_FailFast(t *testing.T) {
	exe := &fakeExecutor{exitFor: map[string]int{"pytest": 1}}
	eng := NewEngine(fiveStageDef(), exe, nil,
		WithSecrets(secrets.FromMap(map[string]string{"CODECOV_TOKEN": "tok"})))

	res, err := eng.Run(context.Background(), "run-2", pushEvent())
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, res.Status)
	job := res.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "test", job.FailedStage)
	assert.Equal(t, 1, job.ExitCode)

	// The failing stage is the third (0-indexed 2): exactly three commands
	// ran and the remaining two stages never executed.
	assert.Equal(t, 3, exe.callCount())
	assert.Nil(t, exe.envOf("coverage"))
	assert.Nil(t, exe.envOf("codecov"))
}

func TestEngine_Run_MissingSecret(t *testing.T) {
	exe := &fakeExecutor{}
	eng := NewEngine(fiveStageDef(), exe, nil) // empty secret store

	res, err := eng.Run(context.Background(), "run-3", pushEvent())
	require.NoError(t, err)

	job := res.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "codecov-upload", job.FailedStage)
	assert.Contains(t, job.Reason, "CODECOV_TOKEN")

	// The upload subprocess was never attempted: four stages ran, the
	// fifth failed during injection.
	assert.Equal(t, 4, exe.callCount())
	assert.Nil(t, exe.envOf("codecov"))
}

func TestEngine_Run_SecretIsolation(t *testing.T) {
	exe := &fakeExecutor{}
	eng := NewEngine(fiveStageDef(), exe, nil,
		WithSecrets(secrets.FromMap(map[string]string{"CODECOV_TOKEN": "cc-secret"})))

	_, err := eng.Run(context.Background(), "run-4", pushEvent())
	require.NoError(t, err)

	for _, fragment := range []string{"pip", "mypy", "pytest", "coverage"} {
		env := exe.envOf(fragment)
		require.NotNil(t, env, fragment)
		assert.NotContains(t, strings.Join(env, "\n"), "cc-secret",
			"stage %q must not observe undeclared secrets", fragment)
	}
	assert.Contains(t, strings.Join(exe.envOf("codecov"), "\n"), "CODECOV_TOKEN=cc-secret")
}

func TestEngine_Run_SetupStageExtendsPath(t *testing.T) {
	exe := &fakeExecutor{}
	prov := &fakeProvisioner{dir: "/cache/python-3.8/bin"}

	def := fiveStageDef()
	def.Stages = append([]domain.Stage{{Name: "runtime", Setup: "python@${{ matrix.python-version }}"}}, def.Stages...)

	eng := NewEngine(def, exe, prov,
		WithSecrets(secrets.FromMap(map[string]string{"CODECOV_TOKEN": "tok"})))

	res, err := eng.Run(context.Background(), "run-5", pushEvent())
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, res.Status)

	assert.Equal(t, []string{"python@3.8"}, prov.seen, "matrix placeholder resolved before provisioning")

	env := strings.Join(exe.envOf("mypy"), "\n")
	assert.Contains(t, env, "/cache/python-3.8/bin", "provisioned bin dir lands on the stage PATH")
	assert.Contains(t, env, "GANTRY_MATRIX_PYTHON_VERSION=3.8")
}

func TestEngine_Run_ProvisionFailure(t *testing.T) {
	exe := &fakeExecutor{}
	prov := &fakeProvisioner{err: &domain.ProvisionError{Directive: "python@3.8", Err: errors.New("connection refused")}}

	def := &domain.Definition{
		Name: "p",
		On:   []string{"push"},
		Stages: []domain.Stage{
			{Name: "runtime", Setup: "python@3.8"},
			{Name: "test", Run: "pytest"},
		},
	}
	eng := NewEngine(def, exe, prov)

	res, err := eng.Run(context.Background(), "run-6", pushEvent())
	require.NoError(t, err)

	job := res.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "runtime", job.FailedStage)
	assert.Zero(t, exe.callCount(), "no stage runs after a provisioning failure")
}

// slowProvisioner blocks until its delay passes or ctx expires.
type slowProvisioner struct{ delay time.Duration }

func (p *slowProvisioner) Provision(ctx context.Context, directive string) (string, error) {
	select {
	case <-time.After(p.delay):
		return "/cache/bin", nil
	case <-ctx.Done():
		return "", &domain.ProvisionError{Directive: directive, Err: ctx.Err()}
	}
}

func TestEngine_Run_ProvisionTimeout(t *testing.T) {
	exe := &fakeExecutor{}
	prov := &slowProvisioner{delay: 10 * time.Second}

	def := &domain.Definition{
		Name: "p",
		On:   []string{"push"},
		Stages: []domain.Stage{
			{Name: "runtime", Setup: "python@3.8"},
			{Name: "test", Run: "pytest"},
		},
	}
	eng := NewEngine(def, exe, prov, WithStageTimeout(50*time.Millisecond))

	start := time.Now()
	res, err := eng.Run(context.Background(), "run-13", pushEvent())
	require.NoError(t, err)

	job := res.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "runtime", job.FailedStage)
	assert.Contains(t, job.Reason, "timed out", "the stage budget bounds the fetch, not just subprocesses")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, exe.callCount())
}

func TestEngine_Run_JobsAreIndependent(t *testing.T) {
	// Jobs for 3.7 fail at pytest; jobs for 3.8 succeed. One failing
	// sibling never prevents the other from finishing.
	exe := &fakeExecutor{exitFor: map[string]int{"pytest-3.7": 2}}

	def := &domain.Definition{
		Name: "p",
		On:   []string{"push"},
		Axes: []domain.Axis{{Name: "v", Values: []domain.AxisValue{
			domain.StringValue("3.7"), domain.StringValue("3.8"),
		}}},
		Stages: []domain.Stage{
			{Name: "test", Run: "pytest-${{ matrix.v }}"},
			{Name: "report", Run: "report-${{ matrix.v }}"},
		},
	}
	eng := NewEngine(def, exe, nil)

	res, err := eng.Run(context.Background(), "run-7", pushEvent())
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, res.Status)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, domain.JobFailed, res.Jobs[0].Status)
	assert.Equal(t, domain.JobSucceeded, res.Jobs[1].Status)
	assert.NotNil(t, exe.envOf("report-3.8"), "sibling job ran to completion")
	assert.Nil(t, exe.envOf("report-3.7"), "failed job still short-circuits its own stages")
}

func TestEngine_Run_IgnoresForeignEvents(t *testing.T) {
	exe := &fakeExecutor{}
	eng := NewEngine(fiveStageDef(), exe, nil)

	res, err := eng.Run(context.Background(), "run-8", domain.Event{Type: "tag"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSkipped, res.Status)
	assert.Empty(t, res.Jobs)
	assert.Zero(t, exe.callCount())
}

func TestEngine_Run_Abort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exe := &fakeExecutor{}
	eng := NewEngine(fiveStageDef(), exe, nil,
		WithSecrets(secrets.FromMap(map[string]string{"CODECOV_TOKEN": "tok"})))

	res, err := eng.Run(ctx, "run-9", pushEvent())
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, res.Status)
	assert.Equal(t, domain.JobAborted, res.Jobs[0].Status)
}

func TestEngine_Run_StageTimeout(t *testing.T) {
	def := &domain.Definition{
		Name: "p",
		On:   []string{"push"},
		Stages: []domain.Stage{
			{Name: "fast", Run: "echo quick"},
			{Name: "slow", Run: "sleep 10"},
			{Name: "after", Run: "echo never"},
		},
	}
	eng := NewEngine(def, process.NewExecutor(), nil,
		WithStageTimeout(100*time.Millisecond))

	res, err := eng.Run(context.Background(), "run-10", pushEvent())
	require.NoError(t, err)

	job := res.Jobs[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "slow", job.FailedStage)
	assert.Contains(t, job.Reason, "timed out")
	require.Len(t, job.Stages, 2, "the stage after the timeout never runs")
}

func TestEngine_Run_UndeclaredAxisIsPreflight(t *testing.T) {
	def := &domain.Definition{
		Name:   "p",
		On:     []string{"push"},
		Stages: []domain.Stage{{Name: "a", Run: "echo ${{ matrix.nope }}"}},
	}
	exe := &fakeExecutor{}
	eng := NewEngine(def, exe, nil)

	_, err := eng.Run(context.Background(), "run-11", pushEvent())
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, exe.callCount(), "ConfigError aborts before any job starts")
}

func TestEngine_Run_RedactsStageOutput(t *testing.T) {
	def := &domain.Definition{
		Name: "p",
		On:   []string{"push"},
		Stages: []domain.Stage{
			{Name: "upload", Run: "echo token is $CODECOV_TOKEN", Secrets: []string{"CODECOV_TOKEN"}},
		},
	}
	eng := NewEngine(def, process.NewExecutor(), nil,
		WithSecrets(secrets.FromMap(map[string]string{"CODECOV_TOKEN": "cc-secret"})))

	res, err := eng.Run(context.Background(), "run-12", pushEvent())
	require.NoError(t, err)

	out := res.Jobs[0].Stages[0].Output
	assert.NotContains(t, out, "cc-secret")
	assert.Contains(t, out, "***")
}

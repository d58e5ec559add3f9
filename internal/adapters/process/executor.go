// Package process executes stage commands as local subprocesses.
package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/gantry-ci/gantry/pkg/ports"
)

// spawnExitCode marks a process that never produced an exit status.
const spawnExitCode = -1

// Executor implements ports.CommandExecutor using the local shell.
type Executor struct {
	// Shell is the interpreter for stage command lines. Defaults to "sh".
	Shell string
}

// NewExecutor creates a shell executor.
func NewExecutor() *Executor {
	return &Executor{Shell: "sh"}
}

// Execute runs one stage command via "sh -c" and waits for it to exit.
// Cancellation of ctx kills the subprocess. The environment is exactly
// cmd.Env: the orchestrator's own environment never leaks through.
func (e *Executor) Execute(ctx context.Context, cmd ports.Command) (ports.ExecResult, error) {
	shell := e.Shell
	if shell == "" {
		shell = "sh"
	}

	proc := exec.CommandContext(ctx, shell, "-c", cmd.Line)
	proc.Dir = cmd.Dir
	proc.Env = cmd.Env

	var out bytes.Buffer
	proc.Stdout = &out
	proc.Stderr = &out

	err := proc.Run()

	result := ports.ExecResult{Output: out.String()}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		// The subprocess ran and exited non-zero. That is a stage result,
		// not an executor failure.
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	// Spawn failure, kill by cancellation, or signal death.
	result.ExitCode = spawnExitCode
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, err
}

package ports

import (
	"context"

	"github.com/gantry-ci/gantry/pkg/domain"
)

// Command is one fully resolved stage invocation.
type Command struct {
	// Line is the literal shell command line ("sh -c" semantics).
	Line string

	// Env is the complete subprocess environment as KEY=VALUE pairs. The
	// executor passes it through verbatim; nothing from the orchestrator
	// process leaks in implicitly.
	Env []string

	// Dir is the working directory. Empty means the executor's default.
	Dir string
}

// ExecResult reports the outcome of one executed command.
type ExecResult struct {
	// Output is the combined stdout/stderr of the subprocess.
	Output string

	// ExitCode is the subprocess exit status. It is negative when the
	// process could not be spawned or was killed before exiting.
	ExitCode int
}

// CommandExecutor runs stage commands synchronously. Execute blocks until
// the subprocess exits or ctx is done; cancellation must kill the process.
type CommandExecutor interface {
	// Execute returns a nil error for any exit status, including non-zero:
	// a completed subprocess is a result, not an executor failure. A
	// non-nil error means the command could not be run at all.
	Execute(ctx context.Context, cmd Command) (ExecResult, error)
}

// Provisioner acquires a pinned toolchain for one job and makes it
// resolvable on the job's command path.
type Provisioner interface {
	// Provision resolves a directive of the form "tool@version" and returns
	// the directory to prepend to the job's PATH. It is the one operation
	// allowed to block on network I/O; it must be safe to repeat for the
	// same directive (caching), and it must not retry internally.
	Provision(ctx context.Context, directive string) (string, error)
}

// RunStore persists terminal run results for later inspection.
type RunStore interface {
	// Save persists the result under its run ID.
	Save(ctx context.Context, result *domain.RunResult) error

	// Load retrieves a result by run ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.RunResult, error)

	// List returns the IDs of stored runs.
	List(ctx context.Context) ([]string, error)

	// Delete removes a stored run.
	Delete(ctx context.Context, runID string) error
}

package domain

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run ID cannot be found in the store.
var ErrRunNotFound = errors.New("run not found")

// ConfigError reports a malformed or incomplete pipeline definition. It is
// fatal and pre-flight: no job starts when the definition does not parse.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid pipeline: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("invalid pipeline: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ProvisionError reports a failed environment setup for one job. The fetch
// is attempted exactly once; retries belong to the surrounding automation.
type ProvisionError struct {
	Directive string
	Err       error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning %q failed: %v", e.Directive, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// MissingSecretError reports a stage referencing a secret that the store
// does not hold. The job fails before the stage subprocess is spawned; the
// value is never silently defaulted to empty.
type MissingSecretError struct {
	Name string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("secret %q is not available in the secret store", e.Name)
}

// StageError reports a stage whose subprocess exited non-zero, could not be
// spawned, or exceeded its timeout. It short-circuits all remaining stages.
type StageError struct {
	Stage    string
	ExitCode int
	Timeout  bool
	Err      error
}

func (e *StageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("stage %q timed out", e.Stage)
	}
	if e.Err != nil {
		return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %q exited with code %d", e.Stage, e.ExitCode)
}

func (e *StageError) Unwrap() error { return e.Err }

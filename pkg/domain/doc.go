/*
Package domain contains the core domain models for the gantry orchestrator.

It defines the fundamental entities of a pipeline run: the parsed Definition,
matrix Axes and their expanded JobSpecs, the per-job ExecutionContext, and
terminal Job/Run results. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Definition: The immutable pipeline document (trigger events, axes, stages).
  - JobSpec: One concrete matrix cell with its resolved stage list.
  - ExecutionContext: Per-job mutable environment handed to stage subprocesses.
  - JobResult / RunResult: Terminal records of a job and of a whole run.
*/
package domain

/*
Package ports defines the driven ports (interfaces) for the gantry engine.

These interfaces decouple the core logic from external implementations,
allowing the runner to work with various command executors, toolchain
provisioners, and result stores.

# Key Interfaces

  - CommandExecutor: Runs one stage command as a subprocess.
  - Provisioner: Acquires a pinned toolchain version for a job.
  - RunStore: Persists and loads terminal RunResults.
*/
package ports

/*
Package gantry is a small orchestrator for declarative, matrix-expanded CI
pipelines: on an external event (typically a push), it expands a version
matrix into independent jobs and runs each job's stages as fail-fast shell
commands with per-stage secret injection.

The pipeline is a YAML document listing trigger events, matrix axes, and an
ordered stage sequence. Stages are either literal command lines or setup
directives that provision a pinned toolchain onto the job's command path.

# Key Properties

  - Fail-fast: the first failing stage terminates its job; no later stage runs.
  - Job isolation: matrix jobs share nothing mutable and may run in parallel;
    one job's failure never stops its siblings.
  - Secret hygiene: secrets come from the process environment at trigger
    time, are injected only into stages that declare them, and are redacted
    from all captured output and logs.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/gantry-ci/gantry"
		"github.com/gantry-ci/gantry/pkg/domain"
	)

	func main() {
		eng, err := gantry.New("./pipeline.yml")
		if err != nil {
			log.Fatal(err)
		}

		result, err := eng.Trigger(context.Background(), domain.Event{
			Type: "push",
			Ref:  "refs/heads/main",
		})
		if err != nil {
			log.Fatal(err)
		}

		for _, job := range result.Jobs {
			log.Printf("%s: %s", job.JobID, job.Status)
		}
	}
*/
package gantry

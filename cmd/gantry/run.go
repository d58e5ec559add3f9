package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantry-ci/gantry"
	"github.com/gantry-ci/gantry/internal/adapters/provision"
	"github.com/gantry-ci/gantry/internal/logging"
	"github.com/gantry-ci/gantry/pkg/domain"
)

// runCmd triggers one pipeline run locally, as if a push event arrived.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger the pipeline locally",
	Long:  `Loads the pipeline file, expands the matrix, and runs every job as if a push event had arrived. Exits non-zero when any job fails.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if len(args) > 0 {
			file = args[0]
		}
		eventType, _ := cmd.Flags().GetString("event")
		ref, _ := cmd.Flags().GetString("ref")
		timeout, _ := cmd.Flags().GetDuration("stage-timeout")
		parallel, _ := cmd.Flags().GetInt("parallel")
		source, _ := cmd.Flags().GetString("toolchain-source")
		cache, _ := cmd.Flags().GetString("cache-dir")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if err := runPipeline(file, eventType, ref, source, cache, timeout, parallel, verbose); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("event", "push", "Event type to simulate")
	runCmd.Flags().String("ref", "refs/heads/main", "Ref carried by the simulated event")
	runCmd.Flags().Duration("stage-timeout", 15*time.Minute, "Budget per stage subprocess (0 disables)")
	runCmd.Flags().Int("parallel", 0, "Max concurrent matrix jobs (0 = all)")
	runCmd.Flags().String("toolchain-source", "", "Base URL for toolchain downloads used by setup stages")
	runCmd.Flags().String("cache-dir", defaultCacheDir(), "Toolchain cache directory")
}

func runPipeline(file, eventType, ref, source, cache string, timeout time.Duration, parallel int, verbose bool) error {
	logger := newLogger(verbose)

	eng, err := gantry.New(file,
		gantry.WithLogger(logger),
		gantry.WithStageTimeout(timeout),
		gantry.WithMaxParallel(parallel),
		gantry.WithProvisioner(provision.New(cache,
			provision.WithBaseURL(source),
			provision.WithLogger(logger),
		)),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := eng.Trigger(ctx, domain.Event{Type: eventType, Ref: ref})
	if err != nil {
		return err
	}

	printSummary(result)
	if result.Status == domain.RunFailed {
		os.Exit(1)
	}
	return nil
}

func printSummary(result *domain.RunResult) {
	fmt.Printf("Run %s (%s): %s\n", result.ID, result.Pipeline, result.Status)
	for _, job := range result.Jobs {
		marker := "✔"
		if job.Status != domain.JobSucceeded {
			marker = "✖"
		}
		fmt.Printf("  %s %s: %s", marker, job.JobID, job.Status)
		if job.FailedStage != "" {
			fmt.Printf(" (stage %q, exit %d)", job.FailedStage, job.ExitCode)
		}
		fmt.Println()
		for _, stage := range job.Stages {
			fmt.Printf("      %-20s exit=%d %s\n", stage.Stage, stage.ExitCode, stage.Duration.Round(time.Millisecond))
		}
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(level)
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "gantry", "toolchains")
	}
	return filepath.Join(os.TempDir(), "gantry-toolchains")
}

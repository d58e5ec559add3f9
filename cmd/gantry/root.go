package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Gantry is a declarative CI pipeline orchestrator",
	Long:  `Gantry runs declarative, matrix-expanded CI pipelines: fail-fast stage sequences with toolchain provisioning and per-stage secret injection.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("file", "f", "pipeline.yml", "Pipeline definition file")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantry-ci/gantry/internal/config"
	"github.com/gantry-ci/gantry/internal/matrix"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the pipeline file for consistency",
	Long:  `Parses the pipeline definition and expands its matrix without running anything, reporting malformed stages, axes, or placeholder references.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if len(args) > 0 {
			file = args[0]
		}
		jobs, err := runValidate(file)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pipeline is valid! ✅ (%d jobs)\n", jobs)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(file string) (int, error) {
	def, err := config.Load(file)
	if err != nil {
		return 0, err
	}

	// Expansion catches what static validation cannot, e.g. stage commands
	// referencing an axis the matrix never declares.
	specs, err := matrix.Expand(def)
	if err != nil {
		return 0, err
	}
	return len(specs), nil
}

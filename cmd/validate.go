package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civimetric/robustness-cli/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the generated pipeline outputs",
	Long: `Validates the artifacts in the output directory: the harmonized
country-year CSV and column map must exist and be well formed; the SQLite
snapshot, assessment CSV and thresholds artifact are checked when present.

Warnings print but do not fail the run; any error exits nonzero.`,
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.String("output-dir", "data/output", "directory holding the generated outputs")
	f.Int("start-year", 2020, "first year of the country grid")
	f.Int("end-year", 2026, "last year of the country grid")
	f.Bool("require-optional", false, "treat missing optional outputs as errors")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	outputDir, _ := cmd.Flags().GetString("output-dir")
	startYear, _ := cmd.Flags().GetInt("start-year")
	endYear, _ := cmd.Flags().GetInt("end-year")
	requireOptional, _ := cmd.Flags().GetBool("require-optional")

	ctx := validate.Run(validate.Options{
		OutputDir:       outputDir,
		StartYear:       startYear,
		EndYear:         endYear,
		RequireOptional: requireOptional,
	})

	for _, w := range ctx.Warnings {
		fmt.Printf("[warn] %s\n", w)
	}
	for _, e := range ctx.Errors {
		fmt.Printf("[error] %s\n", e)
	}

	if !ctx.OK() {
		return eris.Errorf("validation failed with %d error(s)", len(ctx.Errors))
	}
	if len(ctx.Warnings) > 0 {
		fmt.Printf("Validation passed with %d warning(s).\n", len(ctx.Warnings))
	} else {
		fmt.Println("Validation passed.")
	}
	return nil
}

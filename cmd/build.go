package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/civimetric/robustness-cli/internal/harmonize"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Harmonize raw indicator sources into the country-year table",
	Long: `Crosses the UN member list with the year range and left-joins every
configured indicator source (V-Dem, Freedom House, HRMI, RSF, WGI, CPI,
GSI, AFI) on (iso3, year) under dataset-prefixed column names.

Writes country_<start>_<end>.csv, column_map.csv and a SQLite snapshot
to the output directory. Sources that carry country names instead of
ISO3 codes resolve through the UN members name index.

Examples:
  # Build with the conventional raw-file locations
  build --raw-dir data/raw --output-dir data/output

  # Tolerate absent sources and override one path
  build --allow-missing --vdem data/raw/vdem_subset.csv`,
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.String("raw-dir", "data/raw", "directory holding the raw source files")
	f.String("output-dir", "data/output", "directory for the harmonized outputs")
	f.Int("start-year", 2020, "first year of the country grid")
	f.Int("end-year", 2026, "last year of the country grid")
	f.Bool("allow-missing", false, "warn instead of failing when a source file is absent")

	// Per-source overrides of the primary file path.
	f.String("vdem", "", "V-Dem country-year CSV")
	f.String("freedom-house", "", "Freedom House workbook")
	f.String("hrmi", "", "HRMI rights tracker CSV")
	f.String("rsf", "", "RSF press freedom CSV")
	f.String("wgi", "", "WGI workbook")
	f.String("cpi", "", "CPI workbook or CSV")
	f.String("gsi", "", "GSI CSV")
	f.String("afi", "", "AFI CSV")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rawDir, _ := cmd.Flags().GetString("raw-dir")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	startYear, _ := cmd.Flags().GetInt("start-year")
	endYear, _ := cmd.Flags().GetInt("end-year")
	allowMissing, _ := cmd.Flags().GetBool("allow-missing")

	sources := harmonize.DefaultSources(rawDir)
	for i := range sources {
		if override, _ := cmd.Flags().GetString(sourceFlag(sources[i].Name)); override != "" {
			sources[i].Paths = append([]string{override}, sources[i].Paths...)
		}
	}

	res, err := harmonize.Run(ctx, harmonize.Options{
		RawDir:       rawDir,
		OutputDir:    outputDir,
		StartYear:    startYear,
		EndYear:      endYear,
		AllowMissing: allowMissing,
		Sources:      sources,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %s (%d rows, %d columns)\n", res.CSVPath, res.Rows, res.Columns)
	if res.ColumnMapPath != "" {
		fmt.Printf("Wrote %s\n", res.ColumnMapPath)
	}
	if res.SQLitePath != "" {
		fmt.Printf("Wrote %s\n", res.SQLitePath)
	}
	return nil
}

// sourceFlag maps a dataset name to its override flag.
func sourceFlag(dataset string) string {
	if dataset == "fh" {
		return "freedom-house"
	}
	return dataset
}

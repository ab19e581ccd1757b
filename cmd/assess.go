package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civimetric/robustness-cli/internal/robustness"
	"github.com/civimetric/robustness-cli/internal/store"
	"github.com/civimetric/robustness-cli/internal/tabular"
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Score country-year risk against calibrated thresholds",
	Long: `Rebuilds the metric table, applies the calibrated thresholds and the
weighted sigmoid risk score, and emits one assessment row per country-year.

Requires a thresholds artifact; run calibrate first.

Examples:
  # Score with config defaults, CSV to stdout
  assess --country data/country.csv

  # Write the assessment CSV and persist the run
  assess --country data/country.csv --output out/country_robustness.csv --save

  # Inspect the rows as a table
  assess --country data/country.csv --format table`,
	RunE: runAssess,
}

func init() {
	f := assessCmd.Flags()
	f.String("config", "", "domain config file, YAML or JSON (default from app config)")
	f.String("country", "", "country-year table, CSV or XLSX (default from app config)")
	f.String("party", "", "party-year table, optional (default from app config)")
	f.String("thresholds", "", "thresholds artifact path (default from domain config)")
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", "csv", "output format: csv or table")
	f.Bool("save", false, "persist the run and its rows to the store")
	f.String("charset", "", "input text encoding, e.g. windows-1252 (default UTF-8)")
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	format, _ := cmd.Flags().GetString("format")
	if format != "csv" && format != "table" {
		return eris.Errorf("assess: --format must be csv or table (got %q)", format)
	}

	domainCfg, err := loadDomainConfig(cmd)
	if err != nil {
		return err
	}

	// The artifact is the contract with calibrate. Load it before touching
	// the input tables so a missing artifact fails fast.
	thrPath := flagOrDefault(cmd, "thresholds", domainCfg.ThresholdsFile)
	art, err := robustness.LoadArtifact(thrPath)
	if err != nil {
		return err
	}

	countryPath := flagOrDefault(cmd, "country", cfg.Robustness.CountryFile)
	partyPath := flagOrDefault(cmd, "party", cfg.Robustness.PartyFile)
	charset, _ := cmd.Flags().GetString("charset")

	country, party, err := loadTables(countryPath, partyPath, tabular.ReadOptions{Charset: charset})
	if err != nil {
		return err
	}

	m, err := robustness.BuildMetricTable(country, party, domainCfg)
	if err != nil {
		return err
	}

	rows := robustness.Score(m, art, domainCfg.RiskWeights)

	outputPath, _ := cmd.Flags().GetString("output")
	if err := outputAssessments(rows, format, outputPath); err != nil {
		return err
	}
	if format == "table" || outputPath != "" {
		printBandSummary(rows)
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run := store.Run{
			CountryFile:    countryPath,
			ThresholdsFile: thrPath,
			Weights:        domainCfg.RiskWeights,
		}
		if party != nil {
			run.PartyFile = partyPath
		}
		saved, err := st.SaveRun(ctx, run, rows)
		if err != nil {
			return eris.Wrap(err, "assess: save run")
		}
		zap.L().Info("run saved",
			zap.String("run_id", saved.ID),
			zap.Int("rows", saved.RowCount),
		)
		fmt.Printf("Saved run %s (%d rows)\n", saved.ID, saved.RowCount)
	}
	return nil
}

func outputAssessments(rows []robustness.Assessment, format, outputPath string) error {
	var out io.Writer = os.Stdout
	if outputPath != "" {
		if dir := filepath.Dir(outputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return eris.Wrapf(err, "assess: create output directory %s", dir)
			}
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "assess: create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	switch format {
	case "csv":
		return writeAssessmentsCSV(out, rows)
	case "table":
		return writeAssessmentsTable(out, rows)
	default:
		return eris.Errorf("assess: unsupported format %q", format)
	}
}

// assessmentHeader fixes the CSV column order. Downstream consumers key
// on these names.
var assessmentHeader = []string{
	"iso3", "year",
	"A", "G", "M", "P", "S_norm", "decline_norm",
	"risk_score", "risk_band",
	"guardrail_breach", "alignment_low", "tipping_zone",
	"percolation_risk", "shock_high", "decline_high",
}

func writeAssessmentsCSV(out io.Writer, rows []robustness.Assessment) error {
	cw := csv.NewWriter(out)

	if err := cw.Write(assessmentHeader); err != nil {
		return eris.Wrap(err, "assess: write CSV header")
	}
	for _, r := range rows {
		rec := []string{
			r.ISO3,
			strconv.Itoa(r.Year),
			csvFloat(r.A),
			csvFloat(r.G),
			csvFloat(r.M),
			csvFloat(r.P),
			csvFloat(r.SNorm),
			csvFloat(r.DeclineNorm),
			csvFloat(r.RiskScore),
			r.RiskBand,
			strconv.FormatBool(r.GuardrailBreach),
			strconv.FormatBool(r.AlignmentLow),
			strconv.FormatBool(r.TippingZone),
			strconv.FormatBool(r.PercolationRisk),
			strconv.FormatBool(r.ShockHigh),
			strconv.FormatBool(r.DeclineHigh),
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "assess: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "assess: flush CSV")
}

func writeAssessmentsTable(out io.Writer, rows []robustness.Assessment) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ISO3\tYEAR\tA\tG\tM\tP\tS_NORM\tDECLINE\tRISK\tBAND\tFLAGS")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ISO3, r.Year,
			tableFloat(r.A), tableFloat(r.G), tableFloat(r.M), tableFloat(r.P),
			tableFloat(r.SNorm), tableFloat(r.DeclineNorm), tableFloat(r.RiskScore),
			r.RiskBand, flagSummary(r))
	}
	return tw.Flush()
}

// csvFloat renders undefined values as empty cells, matching how the
// assessment CSV is read back by spreadsheet tooling.
func csvFloat(f robustness.NullFloat) string {
	v := float64(f)
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func tableFloat(f robustness.NullFloat) string {
	v := float64(f)
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// flagSummary compacts the six breach flags into one table cell.
func flagSummary(a robustness.Assessment) string {
	var set []string
	if a.GuardrailBreach {
		set = append(set, "guardrail")
	}
	if a.AlignmentLow {
		set = append(set, "alignment")
	}
	if a.TippingZone {
		set = append(set, "tipping")
	}
	if a.PercolationRisk {
		set = append(set, "percolation")
	}
	if a.ShockHigh {
		set = append(set, "shock")
	}
	if a.DeclineHigh {
		set = append(set, "decline")
	}
	if len(set) == 0 {
		return "-"
	}
	return strings.Join(set, ",")
}

func printBandSummary(rows []robustness.Assessment) {
	if len(rows) == 0 {
		fmt.Println("No rows scored.")
		return
	}
	counts := map[string]int{}
	tipping := 0
	for _, r := range rows {
		counts[r.RiskBand]++
		if r.TippingZone {
			tipping++
		}
	}
	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Rows scored:  %d\n", len(rows))
	fmt.Printf("Bands:        low=%d medium=%d high=%d\n",
		counts["low"], counts["medium"], counts["high"])
	fmt.Printf("Tipping zone: %d\n", tipping)
}

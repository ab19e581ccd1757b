package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rotisserie/eris"

	"github.com/civimetric/robustness-cli/internal/robustness"
	"github.com/civimetric/robustness-cli/internal/tabular"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Compute quantile thresholds from a country-year dataset",
	Long: `Builds the full metric table (composite indices, party signals,
trend slopes) from the country-year and optional party-year tables, then
derives the named flag thresholds from empirical quantiles and writes the
thresholds artifact consumed by assess.

Examples:
  # Calibrate with config defaults
  calibrate --country data/output/country_2020_2026.csv

  # Include party signals and choose the artifact location
  calibrate --country data/country.csv --party data/vparty.csv --out out/thresholds.json`,
	RunE: runCalibrate,
}

func init() {
	f := calibrateCmd.Flags()
	f.String("config", "", "domain config file, YAML or JSON (default from app config)")
	f.String("country", "", "country-year table, CSV or XLSX (default from app config)")
	f.String("party", "", "party-year table, optional (default from app config)")
	f.String("out", "", "thresholds artifact path (default from domain config)")
	f.String("charset", "", "input text encoding, e.g. windows-1252 (default UTF-8)")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	domainCfg, err := loadDomainConfig(cmd)
	if err != nil {
		return err
	}

	countryPath := flagOrDefault(cmd, "country", cfg.Robustness.CountryFile)
	partyPath := flagOrDefault(cmd, "party", cfg.Robustness.PartyFile)
	outPath := flagOrDefault(cmd, "out", domainCfg.ThresholdsFile)
	charset, _ := cmd.Flags().GetString("charset")

	country, party, err := loadTables(countryPath, partyPath, tabular.ReadOptions{Charset: charset})
	if err != nil {
		return err
	}

	m, err := robustness.BuildMetricTable(country, party, domainCfg)
	if err != nil {
		return err
	}

	art := robustness.Calibrate(m, domainCfg)
	if err := art.Save(outPath); err != nil {
		return err
	}

	zap.L().Info("thresholds calibrated",
		zap.Int("rows", m.Len()),
		zap.Strings("alignment_columns", m.AlignmentCols),
		zap.Strings("guardrail_columns", m.GuardrailCols),
		zap.Strings("stress_columns", m.StressCols),
		zap.String("out", outPath),
	)
	fmt.Printf("Wrote %s\n", outPath)
	return nil
}

// loadDomainConfig resolves the domain config: the --config flag wins,
// then the app config's pointer, then built-in defaults.
func loadDomainConfig(cmd *cobra.Command) (robustness.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = cfg.Robustness.ConfigFile
	}
	if path == "" {
		return robustness.DefaultConfig(), nil
	}
	return robustness.LoadConfig(path)
}

// loadTables reads the country and party tables concurrently. The party
// path is optional: an empty path or a missing file yields a nil table
// and the party signals stay undefined downstream.
func loadTables(countryPath, partyPath string, opts tabular.ReadOptions) (*tabular.Table, *tabular.Table, error) {
	var (
		country *tabular.Table
		party   *tabular.Table
		g       errgroup.Group
	)

	g.Go(func() error {
		t, err := tabular.LoadTable(countryPath, opts)
		if err != nil {
			return err
		}
		country = t
		return nil
	})

	if partyPath != "" {
		g.Go(func() error {
			t, err := tabular.LoadTable(partyPath, opts)
			if err != nil {
				if os.IsNotExist(eris.Cause(err)) {
					zap.L().Warn("party table missing, skipping party signals",
						zap.String("path", partyPath))
					return nil
				}
				return err
			}
			party = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	partyRows := 0
	if party != nil {
		partyRows = party.Len()
	}
	zap.L().Info("tables loaded",
		zap.String("country", countryPath),
		zap.Int("country_rows", country.Len()),
		zap.Int("party_rows", partyRows),
	)
	return country, party, nil
}

func flagOrDefault(cmd *cobra.Command, name, fallback string) string {
	v, _ := cmd.Flags().GetString(name)
	if v != "" {
		return v
	}
	return fallback
}

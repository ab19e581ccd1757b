package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civimetric/robustness-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "robustness-cli",
	Short: "Country-year governance risk scoring",
	Long:  "Computes composite alignment, guardrail and stress indices over harmonized country-year data, calibrates empirical thresholds, scores per-country risk, and stores, serves and publishes the results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civimetric/robustness-cli/internal/robustness"
	"github.com/civimetric/robustness-cli/internal/store"
	"github.com/civimetric/robustness-cli/pkg/notion"
)

var (
	publishRunID  string
	publishBand   string
	publishDB     string
	publishDryRun bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish scored assessments to Notion",
	Long: `Upserts assessment rows from a stored run into a Notion database,
one page per country-year. Pages are matched on the iso3 and year
properties; matched pages update in place, the rest are created.

Only the high band publishes by default. Use --band all for every row.`,
	RunE: runPublish,
}

func init() {
	f := publishCmd.Flags()
	f.StringVar(&publishRunID, "run", "", "run ID to publish (default: latest)")
	f.StringVar(&publishBand, "band", "high", "risk band to publish: low, medium, high or all")
	f.StringVar(&publishDB, "db", "", "Notion database ID (default from config)")
	f.BoolVar(&publishDryRun, "dry-run", false, "print the rows without writing to Notion")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	switch publishBand {
	case "low", "medium", "high", "all":
	default:
		return eris.Errorf("publish: --band must be low, medium, high or all (got %q)", publishBand)
	}
	if publishDB != "" {
		cfg.Notion.AssessmentDB = publishDB
	}
	// Dry runs need the store only, not Notion credentials.
	if !publishDryRun {
		if err := cfg.Validate("publish"); err != nil {
			return err
		}
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	runID := publishRunID
	if runID == "" {
		latest, err := st.LatestRun(ctx)
		if err != nil {
			return eris.Wrap(err, "publish: latest run")
		}
		if latest == nil {
			return eris.New("publish: no runs stored (run assess --save first)")
		}
		runID = latest.ID
	} else if _, err := st.GetRun(ctx, runID); err != nil {
		return eris.Wrapf(err, "publish: run %s", runID)
	}

	filter := store.AssessmentFilter{}
	if publishBand != "all" {
		filter.Band = publishBand
	}
	rows, err := st.Assessments(ctx, runID, filter)
	if err != nil {
		return eris.Wrap(err, "publish: load assessments")
	}
	if len(rows) == 0 {
		fmt.Println("No matching assessments to publish.")
		return nil
	}

	if publishDryRun {
		return printPublishPreview(os.Stdout, runID, rows)
	}

	client := notion.NewClient(cfg.Notion.Token)
	publisher := notion.NewPublisher(client, cfg.Notion.AssessmentDB)
	created, updated, err := publisher.Publish(ctx, rows)
	if err != nil {
		return err
	}

	zap.L().Info("publish complete",
		zap.String("run_id", runID),
		zap.Int("created", created),
		zap.Int("updated", updated),
	)
	fmt.Printf("Published %d assessments (%d created, %d updated)\n",
		created+updated, created, updated)
	return nil
}

func printPublishPreview(out io.Writer, runID string, rows []robustness.Assessment) error {
	_, _ = fmt.Fprintf(out, "Would publish %d assessments from run %s:\n\n", len(rows), truncateID(runID))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ISO3\tYEAR\tRISK\tBAND\tFLAGS")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			r.ISO3, r.Year, tableFloat(r.RiskScore), r.RiskBand, flagSummary(r))
	}
	return tw.Flush()
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/civimetric/robustness-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored assessment runs",
	Long:  "Commands for listing, viewing, and summarizing assessment runs persisted with assess --save.",
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "maximum runs to list")
	runsListCmd.Flags().Int("offset", 0, "runs to skip")
	runsStatsCmd.Flags().Duration("since", 0, "only count runs newer than this, e.g. 720h (default: all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored. Run assess --save first.")
			return nil
		}
		return formatRunsList(os.Stdout, runs)
	},
}

func formatRunsList(out io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCREATED\tROWS\tLOW\tMEDIUM\tHIGH\tCOUNTRY FILE")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.RowCount,
			r.BandCounts["low"],
			r.BandCounts["medium"],
			r.BandCounts["high"],
			truncatePath(r.CountryFile),
		)
	}
	return tw.Flush()
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "runs show %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate band counts across stored runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000}) // high limit for stats
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		var cutoff time.Time
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			cutoff = time.Now().Add(-since)
		}
		return formatRunStats(os.Stdout, computeRunStats(runs, cutoff))
	},
}

type runStats struct {
	Runs  int
	Rows  int
	Bands map[string]int
}

func computeRunStats(runs []store.Run, cutoff time.Time) runStats {
	s := runStats{Bands: map[string]int{}}
	for _, r := range runs {
		if !cutoff.IsZero() && r.CreatedAt.Before(cutoff) {
			continue
		}
		s.Runs++
		s.Rows += r.RowCount
		for band, n := range r.BandCounts {
			s.Bands[band] += n
		}
	}
	return s
}

func formatRunStats(out io.Writer, s runStats) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Runs:\t%d\n", s.Runs)
	_, _ = fmt.Fprintf(tw, "Rows scored:\t%d\n", s.Rows)
	for _, band := range []string{"low", "medium", "high"} {
		_, _ = fmt.Fprintf(tw, "Band %s:\t%d\n", band, s.Bands[band])
	}
	return tw.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncatePath(p string) string {
	if len(p) > 40 {
		return "..." + p[len(p)-37:]
	}
	return p
}

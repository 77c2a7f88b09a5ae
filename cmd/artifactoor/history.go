package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/ledger"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded upload runs",
	Long: `List recent upload runs from the ledger, or the artifacts of a single
run with --run. Requires ledger.enabled.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Maximum number of runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "",
		"Show the artifacts of this run id")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, func(c *config.Config) error {
		if !c.Ledger.Enabled {
			return fmt.Errorf("ledger is not enabled (set ledger.enabled)")
		}

		return c.Ledger.Validate()
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	store, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopLedger(store)

	if historyRun != "" {
		return printRun(ctx, os.Stdout, store, historyRun)
	}

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}

	return printRuns(os.Stdout, runs)
}

func printRuns(out io.Writer, runs []ledger.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tSUBDIRECTORY\tSTATUS\tFILES\tUPLOADED\tDEDUPLICATED\tDURATION")

	for _, r := range runs {
		subdir := r.Subdirectory
		if subdir == "" {
			subdir = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID,
			r.StartedAt.Local().Format(time.RFC3339),
			subdir,
			r.Status,
			r.Files,
			r.Uploaded,
			r.Deduplicated,
			units.HumanDuration(r.FinishedAt.Sub(r.StartedAt)),
		)
	}

	return w.Flush()
}

func printRun(ctx context.Context, out io.Writer, store ledger.Store, runID string) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	artifacts, err := store.ListArtifacts(ctx, runID)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "run:     %s\n", run.RunID)
	_, _ = fmt.Fprintf(out, "status:  %s\n", run.Status)
	_, _ = fmt.Fprintf(out, "started: %s\n", run.StartedAt.Local().Format(time.RFC3339))

	if run.Error != "" {
		_, _ = fmt.Fprintf(out, "error:   %s\n", run.Error)
	}

	if len(artifacts) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PATH\tSIZE\tDEDUPLICATED\tURL")

	for _, a := range artifacts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\n",
			a.Path, units.HumanSize(float64(a.Size)), a.Deduplicated, a.URL)
	}

	return w.Flush()
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aristath/capitol/internal/di"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent rebalance runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *di.Container, log zerolog.Logger) error {
			runs, err := c.RebalanceService.Runs(context.Background(), runsLimit)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CYCLE\tSTARTED\tMODE\tDRY\tEQUITY\tSUBMITTED\tFAILED\tSKIPPED\tFLAGGED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%.2f\t%d\t%d\t%d\t%d\n",
					r.CycleID, r.StartedAt.Format(time.RFC3339), r.Mode, r.DryRun, r.Equity,
					r.Submitted, r.Failed, r.Skipped, r.Flagged)
			}
			return w.Flush()
		})
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

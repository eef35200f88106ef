package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aristath/capitol/internal/di"
	"github.com/aristath/capitol/internal/modules/blending"
	"github.com/aristath/capitol/internal/modules/rebalancing"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cycleTimeout time.Duration
	dryRun       bool
)

var blendCmd = &cobra.Command{
	Use:   "blend",
	Short: "Build the target portfolio without planning orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *di.Container, log zerolog.Logger) error {
			ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
			defer cancel()

			result, err := c.RebalanceService.Blend(ctx)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(result)
			}
			printBlend(result)
			return nil
		})
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Blend and plan orders without sending them (dry run)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(true)
	},
}

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Run one rebalance cycle against the configured account",
	Long: `Run one full cycle: snapshot the account, blend strategies, plan orders
and submit them. Use --dry-run to plan without sending anything.

Examples:
  capitol rebalance --dry-run
  capitol rebalance --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(dryRun)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{blendCmd, planCmd, rebalanceCmd} {
		cmd.Flags().DurationVar(&cycleTimeout, "timeout", 15*time.Minute, "Maximum duration of the cycle")
		rootCmd.AddCommand(cmd)
	}
	rebalanceCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan without submitting orders")
}

func runCycle(dry bool) error {
	return withContainer(func(c *di.Container, log zerolog.Logger) error {
		ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		defer cancel()

		result, err := c.RebalanceService.RunCycle(ctx, dry)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(result)
		}
		printBlend(result.Blend)
		printPlan(result.Plan, result.Report)
		return nil
	})
}

func printBlend(result *blending.Result) {
	md := result.Metadata
	fmt.Printf("Equity %.2f  gross %.2f  net %.2f  long %d  short %d  strategies ok %d failed %d\n",
		result.TotalEquity, md.GrossExposure, md.NetExposure, md.LongCount, md.ShortCount,
		md.StrategiesSucceeded, md.StrategiesFailed)
	for _, f := range md.Failures {
		fmt.Printf("  strategy %s failed: %s\n", f.Strategy, f.Message)
	}
	for _, w := range md.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tTARGET\tSOURCES\tCAPPED")
	for _, p := range result.Positions {
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%t\n", p.Symbol, p.TargetValue, strings.Join(p.Details.Sources, ","), p.Details.WasCapped)
	}
	w.Flush()
}

func printPlan(plan *rebalancing.RebalancePlan, report *rebalancing.ExecutionReport) {
	fmt.Printf("\nCycle %s: %d orders\n", plan.CycleID, len(plan.Orders))

	status := map[string]rebalancing.OrderResult{}
	if report != nil {
		for _, r := range report.Results {
			status[r.Intent.Symbol] = r
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIDE\tREASON\tCURRENT\tTARGET\tNOTIONAL\tSTATUS")
	for _, o := range plan.Orders {
		st := "planned"
		if r, ok := status[o.Symbol]; ok {
			st = r.Status
			if r.FlagReason != "" {
				st += " (" + r.FlagReason + ")"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
			o.Symbol, o.Side, o.Reason, o.CurrentValue, o.TargetValue, o.Notional, st)
	}
	w.Flush()

	if len(plan.Frozen) > 0 {
		fmt.Printf("\nuntradeable, left untouched: %s\n", strings.Join(plan.Frozen, ", "))
	}

	if report != nil {
		fmt.Printf("\nsubmitted %d  failed %d  skipped %d  flagged %d  cancelled %d\n",
			report.Submitted, report.Failed, report.Skipped, report.Flagged, report.Cancelled)
	}
}

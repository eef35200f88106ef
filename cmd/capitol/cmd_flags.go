package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/aristath/capitol/internal/di"
	"github.com/aristath/capitol/internal/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Inspect and lift untradeable symbol flags",
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active untradeable flags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *di.Container, log zerolog.Logger) error {
			flags, err := c.FlagRepo.Active(context.Background())
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(flags)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tREASON\tFLAGGED\tEXPIRES\tDETAIL")
			for _, f := range flags {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Symbol, f.Reason,
					f.FlaggedAt.Format(time.RFC3339), f.ExpiresAt.Format(time.RFC3339), f.Detail)
			}
			return w.Flush()
		})
	},
}

var flagsClearCmd = &cobra.Command{
	Use:   "clear SYMBOL",
	Short: "Lift the untradeable flag on a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := args[0]
		if err := domain.ValidateSymbol(symbol); err != nil {
			return err
		}
		return withContainer(func(c *di.Container, log zerolog.Logger) error {
			if err := c.FlagRepo.Clear(context.Background(), symbol); err != nil {
				return err
			}
			fmt.Printf("Cleared untradeable flag on %s\n", symbol)
			return nil
		})
	},
}

func init() {
	flagsCmd.AddCommand(flagsListCmd, flagsClearCmd)
	rootCmd.AddCommand(flagsCmd)
}

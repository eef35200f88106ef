package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aristath/capitol/internal/di"
	"github.com/aristath/capitol/internal/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Manage stored trade signals",
}

var signalsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import trade signals from a JSON array",
	Long: `Import trade signals from a JSON file containing an array of objects with
symbol, direction (buy|sell), strength, source_strategy, observed_at and
provenance. Invalid rows are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		var sigs []domain.TradeSignal
		if err := json.Unmarshal(data, &sigs); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		return withContainer(func(c *di.Container, log zerolog.Logger) error {
			imported, skipped := 0, 0
			for _, s := range sigs {
				if err := c.SignalRepo.Insert(context.Background(), s); err != nil {
					log.Warn().Err(err).Str("symbol", s.Symbol).Msg("Skipping signal")
					skipped++
					continue
				}
				imported++
			}
			fmt.Printf("Imported %d signals, skipped %d\n", imported, skipped)
			return nil
		})
	},
}

func init() {
	signalsCmd.AddCommand(signalsImportCmd)
	rootCmd.AddCommand(signalsCmd)
}

// Package main is the Capitol command line interface.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aristath/capitol/internal/config"
	"github.com/aristath/capitol/internal/di"
	"github.com/aristath/capitol/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	outputFormat string
	logLevel     string
)

// rootCmd is the base command for the Capitol CLI
var rootCmd = &cobra.Command{
	Use:   "capitol",
	Short: "Signal-driven portfolio rebalancer",
	Long: `Capitol blends alternative-data strategies (congressional trades, insider
filings, lobbying disclosures) into a target portfolio and rebalances a
brokerage account toward it.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withContainer loads configuration, wires dependencies and runs fn
func withContainer(fn func(c *di.Container, log zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	container, err := di.Wire(cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	return fn(container, log)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

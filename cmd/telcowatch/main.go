// Package main is the entry point for the telcowatch CLI: a telecom-market
// news intelligence pipeline with an HTTP API and a one-shot run mode.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "telcowatch",
	Short: "Telecom market news intelligence pipeline",
	Long: `telcowatch tracks Poland's telecom market across three topic streams
(legal, political, financial), distills the news into categorized reports,
and derives cross-domain tips and alerts.

Run "telcowatch serve" for the HTTP API or "telcowatch run" for a one-shot
pipeline run from the command line.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./telcowatch.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

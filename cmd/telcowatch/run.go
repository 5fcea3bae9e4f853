package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var (
	runUserRef string
	runDomains []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.reports.Close()

		result, err := a.orch.Run(cmd.Context(), runUserRef, runDomains)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runUserRef, "user", "cli", "user reference recorded on the run")
	runCmd.Flags().StringSliceVar(&runDomains, "domains",
		[]string{"legal", "political", "financial"}, "topic streams to run")
	rootCmd.AddCommand(runCmd)
}

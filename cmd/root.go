// Package cmd defines the CLI commands for the jobharvest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobharvest",
		Short: "Crawls Japanese job-listing sites into a deduplicated record store",
		Long: `jobharvest runs keyword and area searches against configured job-listing
sources, survives their rendering quirks and rate limits, and persists the
deduplicated, filtered results.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./jobharvest.yaml)")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newSourcesCmd())
	return cmd
}

// Execute is the entry point used by main.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ksaito/jobharvest/internal/adapter"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists the built-in job-listing sources",
		Run: func(cmd *cobra.Command, _ []string) {
			builtin := adapter.Builtin()
			for _, name := range adapter.BuiltinNames() {
				site := builtin[name]
				mode := "static"
				if site.Render() {
					mode = "rendered"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-8s page size %d\n", name, mode, site.PageSize())
			}
		},
	}
}

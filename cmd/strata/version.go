// Version command for the strata CLI.
// See docs/ARCHITECTURE.md § CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/strata/pkg/strata"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the strata version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if flagJSON {
			printJSON(map[string]string{"version": strata.Version})
			return
		}
		fmt.Println("strata", strata.Version)
	},
}

// Log command lists audit log entries.
// See docs/ARCHITECTURE.md § CLI, § Versioning.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logLimit int64

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List audit log entries, newest first",
	Long: `Log lists the global audit log: one entry per write operation across all
types, versioned or not, newest first.

Example:
  strata log --limit 20`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := attachStoreWithModel()
		if err != nil {
			fail("log", err)
		}
		defer store.Detach()

		entries, err := store.Versions(cmd.Context(), logLimit)
		if err != nil {
			fail("log", err)
		}

		if flagJSON {
			printJSON(entries)
			return
		}
		for _, e := range entries {
			fmt.Printf("version %d  at=%s  who=%s  why=%s  tag=%s\n",
				e.Version, e.At, e.Who, e.Why, e.Tag)
		}
	},
}

func init() {
	logCmd.Flags().Int64Var(&logLimit, "limit", 0, "maximum entries (0 = all)")
}

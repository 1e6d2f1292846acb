// History command lists the version stamps of one identity.
// See docs/ARCHITECTURE.md § CLI, § Versioning.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <type> <identity>",
	Short: "List version stamps for one document",
	Long: `History lists the version rows of a versioned entity, newest first:
each row's validity range joined with the audit fields of the write that
created it.

Example:
  strata history Ticket T-1001`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		typeName, identity := args[0], args[1]

		store, err := attachStoreWithModel()
		if err != nil {
			fail("history", err)
		}
		defer store.Detach()

		stamps, err := store.History(cmd.Context(), typeName, identity)
		if err != nil {
			fail("history", err)
		}

		if flagJSON {
			printJSON(stamps)
			return
		}
		for _, s := range stamps {
			current := ""
			if s.Current {
				current = " (current)"
			}
			fmt.Printf("version %d%s  at=%s  who=%s  why=%s  tag=%s\n",
				s.Version, current, s.At, s.Who, s.Why, s.Tag)
		}
	},
}

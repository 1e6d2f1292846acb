// Get command retrieves one document by identity.
// See docs/ARCHITECTURE.md § CLI.
package main

import (
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <type> <identity>",
	Short: "Get a document by identity",
	Long: `Get retrieves the root entity with the given identity, owned parts
reattached. For versioned types the current version is returned.

Example:
  strata get Company 0198a3f2-41cc-7a31-9fd0-6c1de0c7a9b2`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		typeName, identity := args[0], args[1]

		store, err := attachStoreWithModel()
		if err != nil {
			fail("get", err)
		}
		defer store.Detach()

		stored, err := store.Get(cmd.Context(), typeName, identity)
		if err != nil {
			fail("get", err)
		}

		if flagJSON {
			printJSON(stored)
			return
		}
		printJSON(stored.Doc)
	},
}

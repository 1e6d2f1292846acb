// Delete command removes documents matching criteria.
// See docs/ARCHITECTURE.md § CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/strata/pkg/types"
)

var (
	deleteEq    []string
	deleteLike  []string
	deleteMatch []string
	deleteWho   string
	deleteWhy   string
	deleteTag   string
)

var deleteCmd = &cobra.Command{
	Use:   "delete <type>",
	Short: "Delete documents matching criteria",
	Long: `Delete removes every root entity matching the criteria, owned parts
included. At least one criterion is required. Versioned types refuse;
their history is append-only (see squash via the API).

Example:
  strata delete Company --eq id=0198a3f2-41cc-7a31-9fd0-6c1de0c7a9b2
  strata delete Person  # error: parts delete through their owner`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typeName := args[0]

		criteria, err := parseCriteria(deleteEq, deleteLike, deleteMatch)
		if err != nil {
			fmt.Fprintln(os.Stderr, "delete:", err)
			os.Exit(exitUsage)
		}
		if len(criteria) == 0 {
			fmt.Fprintln(os.Stderr, "delete: refusing to delete without criteria (pass --eq, --like, or --match)")
			os.Exit(exitUsage)
		}

		store, err := attachStoreWithModel()
		if err != nil {
			fail("delete", err)
		}
		defer store.Detach()

		info := &types.VersionInfo{Who: deleteWho, Why: deleteWhy, Tag: deleteTag}
		if host, err := os.Hostname(); err == nil {
			info.Where = host
		}

		n, err := store.Delete(cmd.Context(), typeName, criteria, info)
		if err != nil {
			fail("delete", err)
		}

		if flagJSON {
			printJSON(map[string]int64{"deleted": n})
			return
		}
		fmt.Printf("Deleted %d %s\n", n, typeName)
	},
}

func init() {
	deleteCmd.Flags().StringArrayVar(&deleteEq, "eq", nil, "equality criterion field=value (repeatable)")
	deleteCmd.Flags().StringArrayVar(&deleteLike, "like", nil, "LIKE criterion field=pattern (repeatable)")
	deleteCmd.Flags().StringArrayVar(&deleteMatch, "match", nil, "full-text criterion field=query (repeatable)")
	deleteCmd.Flags().StringVar(&deleteWho, "who", "", "audit: author of the change")
	deleteCmd.Flags().StringVar(&deleteWhy, "why", "", "audit: reason for the change")
	deleteCmd.Flags().StringVar(&deleteTag, "tag", "", "audit: tag for the change")
}

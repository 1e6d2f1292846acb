// Find command searches documents by criteria.
// See docs/ARCHITECTURE.md § CLI, § Query Planner.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/strata/pkg/types"
)

var (
	findEq    []string
	findLike  []string
	findMatch []string
	findOrder []string
	findLimit int64
	findOff   int64
	findAsOf  int64
)

var findCmd = &cobra.Command{
	Use:   "find <type>",
	Short: "Search documents by field criteria",
	Long: `Find searches entities of the named type. Criteria name indexed fields:
a bare name resolves on the target type or up its owner chain, a dotted
path descends into owned parts ("members.name"). Multiple criteria are
ANDed. Limit and offset count distinct root entities, not joined rows.

Match queries full-text fields: bare terms are optional, a leading +
makes a term required.

Example:
  strata find Company --match 'address=+California'
  strata find Person --like 'name=%Stev%'
  strata find Company --eq 'members.devices.serial=SJ-1' --limit 1
  strata find Ticket --eq status=open --as-of 42`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typeName := args[0]

		criteria, err := parseCriteria(findEq, findLike, findMatch)
		if err != nil {
			fmt.Fprintln(os.Stderr, "find:", err)
			os.Exit(exitUsage)
		}
		opts := types.FindOptions{
			OrderBy:     findOrder,
			Limit:       findLimit,
			Offset:      findOff,
			AsOfVersion: findAsOf,
		}

		store, err := attachStoreWithModel()
		if err != nil {
			fail("find", err)
		}
		defer store.Detach()

		results, err := store.Search(cmd.Context(), typeName, criteria, opts)
		if err != nil {
			fail("find", err)
		}

		if flagJSON {
			printJSON(results)
			return
		}
		docs := make([]types.Document, 0, len(results))
		for _, st := range results {
			docs = append(docs, st.Doc)
		}
		printJSON(docs)
	},
}

func init() {
	findCmd.Flags().StringArrayVar(&findEq, "eq", nil, "equality criterion field=value (repeatable)")
	findCmd.Flags().StringArrayVar(&findLike, "like", nil, "LIKE criterion field=pattern (repeatable)")
	findCmd.Flags().StringArrayVar(&findMatch, "match", nil, "full-text criterion field=query (repeatable)")
	findCmd.Flags().StringArrayVar(&findOrder, "order", nil, "order term: field [desc] (repeatable)")
	findCmd.Flags().Int64Var(&findLimit, "limit", 0, "maximum distinct roots (0 = unlimited)")
	findCmd.Flags().Int64Var(&findOff, "offset", 0, "distinct roots to skip")
	findCmd.Flags().Int64Var(&findAsOf, "as-of", 0, "read as of a global version (versioned types)")
}

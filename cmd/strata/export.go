// Export command dumps documents of a type as JSONL.
// See docs/ARCHITECTURE.md § CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <type>",
	Short: "Export current documents of a type as JSONL",
	Long: `Export writes the current documents of the named type, one JSON object
per line, to stdout or to a file. For versioned types only current
versions are exported.

Example:
  strata export Company
  strata export Company -o companies.jsonl`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typeName := args[0]

		store, err := attachStoreWithModel()
		if err != nil {
			fail("export", err)
		}
		defer store.Detach()

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				fmt.Fprintln(os.Stderr, "export:", err)
				os.Exit(exitUsage)
			}
			defer f.Close()
			out = f
		}

		n, err := store.Export(cmd.Context(), typeName, out)
		if err != nil {
			fail("export", err)
		}

		// Writing to stdout leaves the stream to the documents alone.
		if exportOut == "" {
			return
		}
		if flagJSON {
			printJSON(map[string]any{"exported": n, "file": exportOut})
			return
		}
		fmt.Printf("Exported %d %s to %s\n", n, typeName, exportOut)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default: stdout)")
}

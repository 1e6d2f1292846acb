// Schema commands compile entity declarations into SQLite tables.
// See docs/ARCHITECTURE.md § CLI, § SQLite Engine.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/strata/internal/sqlite"
	"github.com/mesh-intelligence/strata/pkg/schema"
)

var (
	schemaApplyFile  string
	schemaApplyPrint bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the compiled entity schema",
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Compile an entity model into tables and indexes",
	Long: `Apply reads a YAML entity model, compiles it into DDL, and executes the
DDL against the store. The compiled statements are idempotent; applying an
unchanged model twice is a no-op. On success the model file is installed
into the config directory so data commands can resolve entity types.

With --print the DDL is written to stdout and nothing is executed.

Example:
  strata schema apply -f model.yaml
  strata schema apply -f model.yaml --print`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		raw, err := os.ReadFile(schemaApplyFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "schema apply:", err)
			os.Exit(exitUsage)
		}

		reg, err := schema.ParseModel(raw)
		if err != nil {
			fail("schema apply", err)
		}

		if schemaApplyPrint {
			for _, t := range reg.CreationOrder() {
				for _, ddl := range sqlite.DDLForType(t) {
					fmt.Println(ddl)
				}
			}
			return
		}

		store, err := attachStore()
		if err != nil {
			fail("schema apply", err)
		}
		defer store.Detach()

		if err := store.Register(reg); err != nil {
			fail("schema apply", err)
		}
		if err := store.CreateSchema(cmd.Context()); err != nil {
			fail("schema apply", err)
		}

		installPath, err := installModel(raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, "schema apply:", err)
			os.Exit(exitConfig)
		}

		if flagJSON {
			printJSON(map[string]any{"types": len(reg.Types()), "model": installPath})
			return
		}
		fmt.Printf("Schema applied (%d types)\n", len(reg.Types()))
		fmt.Println("  model:", installPath)
	},
}

// installModel writes the applied model into the configured model location
// so later commands resolve the same declarations.
func installModel(raw []byte) (string, error) {
	path, err := modelFilePath()
	if err != nil {
		return "", fmt.Errorf("resolve model file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("ensure model dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("install model: %w", err)
	}
	return path, nil
}

func init() {
	schemaApplyCmd.Flags().StringVarP(&schemaApplyFile, "file", "f", "", "entity model file (required)")
	schemaApplyCmd.Flags().BoolVar(&schemaApplyPrint, "print", false, "print DDL without executing")
	schemaApplyCmd.MarkFlagRequired("file")

	schemaCmd.AddCommand(schemaApplyCmd)
}

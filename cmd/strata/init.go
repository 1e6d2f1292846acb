// Init command for the strata CLI.
// See docs/ARCHITECTURE.md § CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize strata storage",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// Resolve config directory (flag > env > default) and ensure it
		// exists with a default config.yaml.
		configDir, err := resolveConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitConfig)
		}
		if err := ensureConfigDir(configDir); err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitConfig)
		}
		if err := ensureDefaultConfigFile(configDir); err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitConfig)
		}

		// Attach the store once: creates the data directory, the database
		// file, and the audit tables.
		store, err := attachStore()
		if err != nil {
			fail("init", err)
		}
		defer store.Detach()

		dataDir, err := resolveDataDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "init:", err)
			os.Exit(exitConfig)
		}

		if flagJSON {
			printJSON(map[string]string{"config_dir": configDir, "data_dir": dataDir})
			return
		}
		fmt.Println("Strata initialized successfully")
		fmt.Println("  config:", configDir)
		fmt.Println("  data:  ", dataDir)
	},
}

// Root command for the strata CLI.
// See docs/ARCHITECTURE.md § CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/strata/internal/paths"
	"github.com/mesh-intelligence/strata/pkg/strata"
)

// Exit codes. Usage errors mean the invocation was wrong, config errors
// mean the environment or declarations are wrong, store errors mean the
// engine failed.
const (
	exitSuccess = 0
	exitUsage   = 1
	exitConfig  = 2
	exitStore   = 3
)

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagJSON      bool
)

// Values loaded from config.yaml by PersistentPreRun so all subcommands
// can use them.
var (
	configDataDir      string
	configDatabaseFile string
	configModelFile    string
	configLogLevel     string
)

var rootCmd = &cobra.Command{
	Use:     "strata",
	Short:   "Strata stores object graphs as queryable JSON documents in SQLite",
	Version: strata.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// The version command needs no configuration.
		if cmd.Name() == "version" {
			return
		}

		configDir, err := resolveConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "resolve config dir:", err)
			os.Exit(exitConfig)
		}

		cfg, err := loadConfig(configDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(exitConfig)
		}

		configDataDir = cfg.GetString(cfgKeyDataDir)
		configDatabaseFile = cfg.GetString(cfgKeyDatabaseFile)
		configModelFile = cfg.GetString(cfgKeyModelFile)
		configLogLevel = cfg.GetString(cfgKeyLogLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: $(CWD)/.strata-db)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(exportCmd)
}

// resolveDataDir returns the data directory path following the precedence:
// --data-dir flag > config.yaml data_dir > STRATA_DATA_DIR env > default
// $(CWD)/.strata-db.
func resolveDataDir() (string, error) {
	return paths.ResolveDataDir(flagDataDir, configDataDir)
}

// resolveConfigDir returns the configuration directory following the
// precedence: --config-dir flag > STRATA_CONFIG_DIR env > DefaultConfigDir().
func resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(flagConfigDir)
}

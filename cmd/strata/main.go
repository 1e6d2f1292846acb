// Package main provides the strata CLI.
// See docs/ARCHITECTURE.md § CLI.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Errors reaching this point are flag or argument parse failures;
		// commands classify and exit on their own errors.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}

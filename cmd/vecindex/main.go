// Command vecindex is a thin wiring layer over the indexing pipeline's
// core packages. No business logic lives here: every subcommand just
// loads config, constructs the real components, and calls their exported
// operations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vecindex",
	Short:   "Config-driven indexing pipeline for prepared CSV/JSONL partitions",
	Version: version,
}

var (
	configPath string
	modelsPath string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "vecindex.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&modelsPath, "models", "m", "models.yaml", "Path to model descriptor file")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dropCmd)
}

package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Pulse - automated trading workflow coordinator",
	Long: `Pulse Unified CLI

Coordinates automated trading cycles: periodic market scans, a staged
candidate funnel, risk-budgeted signal execution, and cycle lifecycle
management over a set of collaborator services.

Usage:
  go run ./cmd/pulse [command]

Examples:
  go run ./cmd/pulse serve
  go run ./cmd/pulse cycle start --mode normal
  go run ./cmd/pulse cycle status
  go run ./cmd/pulse scan`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

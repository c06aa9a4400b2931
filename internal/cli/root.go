// Package cli contains the Cobra command tree for the pulse CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var appVersion = "dev"

// SetVersion sets the application version (called from main with ldflags value).
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

var (
	flagConfig  string
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Local-first self-observation log with streak tracking",
	Long: `pulse records quick self-observations (energy and focus on a 1-8 scale)
into a local SQLite log, derives streak and tier badges from the full
history, and pushes entries to a pulselog service when asked.

Entries live locally first; nothing leaves the machine until 'pulse sync'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("pulse", appVersion)
		fmt.Println()
		fmt.Println("Use a subcommand:")
		fmt.Println("  log       Record a self-observation")
		fmt.Println("  today     Show today's entries")
		fmt.Println("  history   Show recent entries")
		fmt.Println("  streak    Show streak and tier badges")
		fmt.Println("  sync      Push unsynced entries to the service")
		return nil
	},
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.pulselog/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/pulselog/internal/persistence/sqlite"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent entries",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyColorPreference()

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving timezone: %w", err)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No entries yet. Use 'pulse log --energy N --focus N' to start.")
		return nil
	}

	fmt.Print(entriesTable(entries, loc))
	return nil
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/pulselog/internal/persistence/sqlite"
	"example.com/pulselog/internal/streak"
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's entries",
	RunE:  runToday,
}

func init() {
	rootCmd.AddCommand(todayCmd)
}

func runToday(cmd *cobra.Command, args []string) error {
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

	entries, err := store.List(0)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}

	today := time.Now().In(loc).Format(time.DateOnly)
	var todays []sqlite.Entry
	for _, e := range entries {
		if e.RecordedAt.In(loc).Format(time.DateOnly) == today {
			todays = append(todays, e)
		}
	}

	if len(todays) == 0 {
		fmt.Println("Nothing logged today yet. Use 'pulse log --energy N --focus N' to start.")
		return nil
	}

	fmt.Print(entriesTable(todays, loc))

	counted := len(todays)
	if counted > streak.MaxDailies {
		counted = streak.MaxDailies
	}
	fmt.Printf("\n%d logged, %d of %d count toward today\n", len(todays), counted, streak.MaxDailies)
	return nil
}

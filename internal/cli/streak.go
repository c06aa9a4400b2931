package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/pulselog/internal/persistence/sqlite"
	"example.com/pulselog/internal/streak"
)

var (
	streakAt string
	streakTZ string
)

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show streak and tier badges",
	Long: `Derive the current streak from the local history and render badges.

The day-streak badge carries the tier as a superscript: "12d³" is a 12-day
streak where every day had at least 3 entries. Week, month and year badges
appear once earned.

Examples:
  pulse streak
  pulse streak --at 2026-08-24T08:00:00Z
  pulse streak --tz Europe/Berlin`,
	RunE: runStreak,
}

func init() {
	streakCmd.Flags().StringVar(&streakAt, "at", "", "Evaluation instant (RFC3339, default now)")
	streakCmd.Flags().StringVar(&streakTZ, "tz", "", "IANA timezone for day bucketing (default: config or system)")
	rootCmd.AddCommand(streakCmd)
}

func runStreak(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyColorPreference()

	if streakTZ != "" {
		cfg.Timezone = streakTZ
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving timezone: %w", err)
	}

	now := time.Now()
	if streakAt != "" {
		now, err = time.Parse(time.RFC3339, streakAt)
		if err != nil {
			return fmt.Errorf("parsing --at: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer func() { _ = store.Close() }()

	instants, err := store.Instants()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	summary := streak.Compute(instants, now.In(loc))
	fmt.Print(renderSummary(summary, loc))
	return nil
}

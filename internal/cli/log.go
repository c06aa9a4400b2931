package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/pulselog/internal/persistence/sqlite"
	"example.com/pulselog/internal/streak"
)

var (
	logEnergy int
	logFocus  int
	logNote   string
	logImage  string
	logAt     string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Record a self-observation",
	Long: `Record an energy/focus observation in the local log. The streak is
re-derived from the full history after every entry.

Examples:
  pulse log --energy 6 --focus 4
  pulse log --energy 3 --focus 7 --note "after the long run"
  pulse log --energy 5 --focus 5 --at 2026-08-24T21:30:00Z`,
	RunE: runLog,
}

func init() {
	logCmd.Flags().IntVar(&logEnergy, "energy", 0, "Energy level 1-8 (required)")
	logCmd.Flags().IntVar(&logFocus, "focus", 0, "Focus level 1-8 (required)")
	logCmd.Flags().StringVar(&logNote, "note", "", "Optional note")
	logCmd.Flags().StringVar(&logImage, "image", "", "Optional image URL")
	logCmd.Flags().StringVar(&logAt, "at", "", "Timestamp (RFC3339, default now)")
	_ = logCmd.MarkFlagRequired("energy")
	_ = logCmd.MarkFlagRequired("focus")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyColorPreference()

	if logEnergy < 1 || logEnergy > 8 {
		return fmt.Errorf("energy must be between 1 and 8, got %d", logEnergy)
	}
	if logFocus < 1 || logFocus > 8 {
		return fmt.Errorf("focus must be between 1 and 8, got %d", logFocus)
	}

	recordedAt := time.Now()
	if logAt != "" {
		recordedAt, err = time.Parse(time.RFC3339, logAt)
		if err != nil {
			return fmt.Errorf("parsing --at: %w", err)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving timezone: %w", err)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer func() { _ = store.Close() }()

	entry, err := store.Insert(sqlite.Entry{
		RecordedAt: recordedAt,
		Energy:     logEnergy,
		Focus:      logFocus,
		Note:       logNote,
		ImageURL:   logImage,
	})
	if err != nil {
		return fmt.Errorf("recording entry: %w", err)
	}

	instants, err := store.Instants()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	summary := streak.Compute(instants, time.Now().In(loc))

	fmt.Printf("Logged energy=%d focus=%d (%s)\n", entry.Energy, entry.Focus, entry.RecordedAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Println(miniBadges(summary))
	return nil
}

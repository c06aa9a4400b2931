package cli

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/pulselog/internal/persistence/sqlite"
)

var (
	syncServer      string
	syncTenant      string
	syncUser        string
	syncConcurrency int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push unsynced entries to the service",
	Long: `Upload every entry not yet pushed to the pulselog service. Each
entry's ULID is sent as the idempotency key, so interrupted syncs are safe
to rerun.

Examples:
  pulse sync --server http://localhost:8080 --tenant acme --user amelie
  PULSE_SERVER=https://pulselog.internal pulse sync --tenant acme --user amelie`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncServer, "server", "", "Service base URL (default: config or PULSE_SERVER)")
	syncCmd.Flags().StringVar(&syncTenant, "tenant", "", "Tenant ID (default: config or PULSE_TENANT)")
	syncCmd.Flags().StringVar(&syncUser, "user", "", "User ID (default: config or PULSE_USER)")
	syncCmd.Flags().IntVar(&syncConcurrency, "concurrency", 4, "Concurrent uploads")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyColorPreference()

	if syncServer != "" {
		cfg.Server = syncServer
	}
	if syncTenant != "" {
		cfg.Tenant = syncTenant
	}
	if syncUser != "" {
		cfg.User = syncUser
	}

	if cfg.Server == "" {
		return fmt.Errorf("no server configured; set --server, PULSE_SERVER, or server in config.yaml")
	}
	if cfg.Tenant == "" {
		return fmt.Errorf("no tenant configured; set --tenant, PULSE_TENANT, or tenant in config.yaml")
	}
	if cfg.User == "" {
		return fmt.Errorf("no user configured; set --user, PULSE_USER, or user in config.yaml")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer func() { _ = store.Close() }()

	pending, err := store.Unsynced()
	if err != nil {
		return fmt.Errorf("loading unsynced entries: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println("Everything is synced.")
		return nil
	}

	client := newAPIClient(cfg.Server, cfg.Tenant, 10*time.Second)

	pushed, err := pushEntries(cmd.Context(), client, store, cfg.User, pending, syncConcurrency)
	if err != nil {
		fmt.Printf("Pushed %d of %d entries to %s\n", pushed, len(pending), cfg.Server)
		return err
	}

	fmt.Printf("Pushed %d entries to %s\n", pushed, cfg.Server)
	return nil
}

// pushEntries uploads entries with bounded concurrency, marking each one
// synced as soon as the service accepts it. It returns how many entries were
// pushed, even when some failed.
func pushEntries(ctx context.Context, client *apiClient, store *sqlite.Store, userID string, entries []sqlite.Entry, concurrency int) (int, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	var pushed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, entry := range entries {
		g.Go(func() error {
			if err := client.push(ctx, userID, entry); err != nil {
				return fmt.Errorf("push entry %s: %w", entry.ID, err)
			}
			if err := store.MarkSynced(entry.ID); err != nil {
				return fmt.Errorf("mark entry %s synced: %w", entry.ID, err)
			}
			pushed.Add(1)
			return nil
		})
	}

	err := g.Wait()
	return int(pushed.Load()), err
}

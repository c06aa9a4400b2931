//go:build integration
// +build integration

package consumer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/pulselog/internal/domain"
	"example.com/pulselog/internal/events"
	"example.com/pulselog/internal/persistence/postgres"
)

func TestAuditHandlerStoresEvent(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	handler := NewAuditHandler(pool)

	payload := json.RawMessage(`{"observation_id":"abc","tenant_id":"tenant-123"}`)
	msg := Message{
		EventType:     "observation.recorded",
		TenantID:      "tenant-123",
		SchemaID:      42,
		SchemaSubject: "observation_events-ObservationRecorded",
		Topic:         "observation_events",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))

	var storedPayload []byte
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM observation_event_log`).Scan(&count))
	require.Equal(t, 1, count)
	err := pool.QueryRow(ctx, `SELECT payload FROM observation_event_log LIMIT 1`).Scan(&storedPayload)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(storedPayload))
}

func TestProjectionHandlerPersistsSummary(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := postgres.NewRepository(pool)

	tenantID := uuid.NewString()
	userID := uuid.NewString()
	observationID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	obs := domain.Observation{
		ID:         observationID,
		TenantID:   tenantID,
		UserID:     userID,
		RecordedAt: now.Add(-time.Hour),
		Energy:     4,
		Focus:      7,
		Version:    "v1",
		State:      domain.ObservationStatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.Create(ctx, obs, ""))

	payload, err := json.Marshal(events.ObservationRecorded{
		ObservationID: observationID,
		TenantID:      tenantID,
		UserID:        userID,
		RecordedAt:    obs.RecordedAt,
		Energy:        obs.Energy,
		Focus:         obs.Focus,
		OccurredAt:    now,
		Version:       "v1",
	})
	require.NoError(t, err)

	handler := NewProjectionHandler(repo, time.UTC)
	require.NoError(t, handler.Handle(ctx, Message{
		Topic:     "observation_events",
		EventType: "observation.recorded",
		TenantID:  tenantID,
		Payload:   payload,
	}))

	proj, err := repo.StreakProjection(ctx, tenantID, userID)
	require.NoError(t, err)
	require.NotNil(t, proj)
	require.Equal(t, 1, proj.DayCount)
	require.Equal(t, 1, proj.CurrentTier)
	require.NotNil(t, proj.LastLogAt)
	require.True(t, proj.LastLogAt.Equal(obs.RecordedAt))

	stored, err := repo.Get(ctx, tenantID, observationID)
	require.NoError(t, err)
	require.Equal(t, domain.ObservationStateReflected, stored.State)

	// Marking reflected must leave a state_changed event behind for clients.
	var stateEvents int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type = 'observation.state_changed' AND aggregate_id = $1`,
		observationID).Scan(&stateEvents))
	require.Equal(t, 2, stateEvents, "expected pending and reflected state events")
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("pulselog"),
		postgrescontainer.WithUsername("pulselog"),
		postgrescontainer.WithPassword("pulselog"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	migrationsPath := resolvePath(t, "../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, file := range files {
		content, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)
		_, execErr := pool.Exec(ctx, string(content))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

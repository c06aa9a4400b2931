//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/pulselog/internal/domain"
)

func TestRepositoryRespectsTenantIsolation(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t, ctx)
	repo := NewRepository(pool)

	obs := domain.Observation{
		ID:         uuid.NewString(),
		TenantID:   uuid.NewString(),
		UserID:     uuid.NewString(),
		RecordedAt: time.Now().UTC().Add(-time.Hour),
		Energy:     5,
		Focus:      6,
		Note:       "integration",
		Version:    "v1",
		State:      domain.ObservationStatePending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	err := repo.Create(ctx, obs, "key-1")
	require.NoError(t, err)

	stored, err := repo.Get(ctx, obs.TenantID, obs.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, obs.ID, stored.ID)
	require.Equal(t, obs.Note, stored.Note)

	otherTenant := uuid.NewString()
	storedOther, err := repo.Get(ctx, otherTenant, obs.ID)
	require.NoError(t, err)
	require.Nil(t, storedOther, "RLS should prevent cross-tenant access")

	replay, err := repo.FindByIdempotency(ctx, obs.TenantID, obs.UserID, "key-1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	require.Equal(t, obs.ID, replay.ID)

	otherKey, err := repo.FindByIdempotency(ctx, obs.TenantID, obs.UserID, "key-2")
	require.NoError(t, err)
	require.Nil(t, otherKey)
}

func TestRepositoryAmendAndRemoveEmitOutboxEvents(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t, ctx)
	repo := NewRepository(pool)

	obs := domain.Observation{
		ID:         uuid.NewString(),
		TenantID:   uuid.NewString(),
		UserID:     uuid.NewString(),
		RecordedAt: time.Now().UTC().Add(-2 * time.Hour),
		Energy:     3,
		Focus:      4,
		Version:    "v1",
		State:      domain.ObservationStatePending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, obs, ""))

	obs.Energy = 7
	obs.UpdatedAt = time.Now().UTC().Add(time.Second)
	require.NoError(t, repo.Amend(ctx, obs))

	amended, err := repo.Get(ctx, obs.TenantID, obs.ID)
	require.NoError(t, err)
	require.Equal(t, 7, amended.Energy)

	require.NoError(t, repo.Remove(ctx, *amended))

	gone, err := repo.Get(ctx, obs.TenantID, obs.ID)
	require.NoError(t, err)
	require.Nil(t, gone)

	counts := map[string]int{}
	rows, err := pool.Query(ctx, `SELECT event_type, COUNT(*) FROM outbox WHERE aggregate_id = $1 GROUP BY event_type`, obs.ID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var eventType string
		var count int
		require.NoError(t, rows.Scan(&eventType, &count))
		counts[eventType] = count
	}
	require.NoError(t, rows.Err())

	require.Equal(t, 1, counts["observation.recorded"])
	require.Equal(t, 1, counts["observation.amended"])
	require.Equal(t, 1, counts["observation.removed"])
	require.Equal(t, 2, counts["observation.state_changed"])
}

func TestRepositoryStreakProjectionLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(t, ctx)
	repo := NewRepository(pool)

	tenantID := uuid.NewString()
	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	first := domain.Observation{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		UserID:     userID,
		RecordedAt: now.Add(-26 * time.Hour),
		Energy:     4,
		Focus:      4,
		Version:    "v1",
		State:      domain.ObservationStatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	second := first
	second.ID = uuid.NewString()
	second.RecordedAt = now.Add(-time.Hour)
	second.UpdatedAt = now.Add(time.Millisecond)

	require.NoError(t, repo.Create(ctx, first, ""))
	require.NoError(t, repo.Create(ctx, second, ""))

	instants, err := repo.HistoryInstants(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Len(t, instants, 2)

	missing, err := repo.StreakProjection(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Nil(t, missing)

	lastLog := second.RecordedAt
	proj := domain.StreakProjection{
		TenantID:       tenantID,
		UserID:         userID,
		DailiesCount:   1,
		DayCount:       2,
		WeekCount:      0,
		MonthCount:     0,
		YearCount:      0,
		CurrentTier:    1,
		LastLogAt:      &lastLog,
		StreakStartDay: first.RecordedAt.Format(time.DateOnly),
		ComputedAt:     now,
	}
	require.NoError(t, repo.UpsertStreakProjection(ctx, proj))

	stored, err := repo.StreakProjection(ctx, tenantID, userID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, 2, stored.DayCount)
	require.NotNil(t, stored.LastLogAt)
	require.True(t, stored.LastLogAt.Equal(lastLog))

	// Upsert replaces rather than duplicates.
	proj.DayCount = 3
	proj.ComputedAt = now.Add(time.Minute)
	require.NoError(t, repo.UpsertStreakProjection(ctx, proj))

	stored, err = repo.StreakProjection(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.DayCount)

	require.NoError(t, repo.MarkObservationReflected(ctx, tenantID, second.ID))
	reflected, err := repo.Get(ctx, tenantID, second.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ObservationStateReflected, reflected.State)

	// A second mark is a no-op for an already reflected row.
	require.NoError(t, repo.MarkObservationReflected(ctx, tenantID, second.ID))

	var reflectedEvents int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type = 'observation.state_changed' AND aggregate_id = $1 AND payload->>'state' = 'reflected'`,
		second.ID).Scan(&reflectedEvents))
	require.Equal(t, 1, reflectedEvents)
}

func setupPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("pulselog"),
		postgrescontainer.WithUsername("pulselog"),
		postgrescontainer.WithPassword("pulselog"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
		"../../../db/postgres/migrations/0002_outbox_dlq_retry.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
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

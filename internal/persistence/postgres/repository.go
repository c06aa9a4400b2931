package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/pulselog/internal/domain"
	"example.com/pulselog/internal/events"
	"example.com/pulselog/internal/observability"
)

// Repository provides Postgres-backed persistence for observations, the
// streak projection and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const observationColumns = `observation_id, tenant_id, user_id, recorded_at, energy, focus, note, image_url, version, processing_state, created_at, updated_at`

// FindByIdempotency checks if an observation already exists for the supplied idempotency key.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.Observation, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	query := `SELECT ` + observationColumns + `
        FROM observations WHERE tenant_id=$1 AND user_id=$2 AND idempotency_key=$3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, query, tenantID, userID, idempotencyKey)
	obs, err := scanObservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return obs, nil
}

// Create persists the observation and records outbox events inside a single transaction.
func (r *Repository) Create(ctx context.Context, obs domain.Observation, idempotencyKey string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", obs.TenantID); err != nil {
		return err
	}

	insertObservation := `INSERT INTO observations (observation_id, tenant_id, user_id, recorded_at, energy, focus, note, image_url, idempotency_key, version, processing_state, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err = tx.Exec(ctx, insertObservation,
		obs.ID,
		obs.TenantID,
		obs.UserID,
		obs.RecordedAt,
		obs.Energy,
		obs.Focus,
		obs.Note,
		obs.ImageURL,
		nullIfEmpty(idempotencyKey),
		obs.Version,
		obs.State,
		obs.CreatedAt,
		obs.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, obs, "observation.recorded", events.ObservationRecorded{
		ObservationID: obs.ID,
		TenantID:      obs.TenantID,
		UserID:        obs.UserID,
		RecordedAt:    obs.RecordedAt,
		Energy:        obs.Energy,
		Focus:         obs.Focus,
		OccurredAt:    obs.CreatedAt,
		Version:       obs.Version,
	}); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, obs, "observation.state_changed", events.ObservationStateChanged{
		ObservationID: obs.ID,
		TenantID:      obs.TenantID,
		UserID:        obs.UserID,
		State:         string(obs.State),
		OccurredAt:    obs.UpdatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordObservationPersisted(obs.UpdatedAt)
	return nil
}

// Amend rewrites the observation row and emits the amended event in the same transaction.
func (r *Repository) Amend(ctx context.Context, obs domain.Observation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", obs.TenantID); err != nil {
		return err
	}

	const update = `UPDATE observations
        SET recorded_at=$3, energy=$4, focus=$5, note=$6, image_url=$7, processing_state=$8, updated_at=$9
        WHERE tenant_id=$1 AND observation_id=$2`

	tag, err := tx.Exec(ctx, update,
		obs.TenantID,
		obs.ID,
		obs.RecordedAt,
		obs.Energy,
		obs.Focus,
		obs.Note,
		obs.ImageURL,
		obs.State,
		obs.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrObservationNotFound
		return err
	}

	if err = insertOutbox(ctx, tx, obs, "observation.amended", events.ObservationAmended{
		ObservationID: obs.ID,
		TenantID:      obs.TenantID,
		UserID:        obs.UserID,
		RecordedAt:    obs.RecordedAt,
		Energy:        obs.Energy,
		Focus:         obs.Focus,
		OccurredAt:    obs.UpdatedAt,
		Version:       obs.Version,
	}); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, obs, "observation.state_changed", events.ObservationStateChanged{
		ObservationID: obs.ID,
		TenantID:      obs.TenantID,
		UserID:        obs.UserID,
		State:         string(obs.State),
		OccurredAt:    obs.UpdatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordObservationPersisted(obs.UpdatedAt)
	return nil
}

// Remove deletes the observation and emits the removed event in the same transaction.
func (r *Repository) Remove(ctx context.Context, obs domain.Observation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", obs.TenantID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM observations WHERE tenant_id=$1 AND observation_id=$2`, obs.TenantID, obs.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrObservationNotFound
		return err
	}

	if err = insertOutbox(ctx, tx, obs, "observation.removed", events.ObservationRemoved{
		ObservationID: obs.ID,
		TenantID:      obs.TenantID,
		UserID:        obs.UserID,
		RecordedAt:    obs.RecordedAt,
		OccurredAt:    time.Now().UTC(),
		Version:       obs.Version,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Get retrieves an observation by ID.
func (r *Repository) Get(ctx context.Context, tenantID, observationID string) (*domain.Observation, error) {
	query := `SELECT ` + observationColumns + `
        FROM observations WHERE tenant_id=$1 AND observation_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, query, tenantID, observationID)
	obs, err := scanObservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return obs, nil
}

// ListByUser returns observations for a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]domain.Observation, error) {
	query := `SELECT ` + observationColumns + `
        FROM observations WHERE tenant_id=$1 AND user_id=$2
        ORDER BY recorded_at DESC, observation_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Observation, 0, limit)
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *obs)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// HistoryInstants loads every recorded instant for a user. The streak engine
// re-derives from the full history, so no limit applies.
func (r *Repository) HistoryInstants(ctx context.Context, tenantID, userID string) ([]time.Time, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT recorded_at FROM observations WHERE tenant_id=$1 AND user_id=$2`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instants []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		instants = append(instants, ts)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return instants, nil
}

// StreakProjection reads the consumer-maintained summary row.
func (r *Repository) StreakProjection(ctx context.Context, tenantID, userID string) (*domain.StreakProjection, error) {
	const query = `SELECT tenant_id, user_id, dailies_count, day_count, week_count, month_count, year_count, current_tier, last_log_at, streak_start_day, computed_at
        FROM streak_summaries WHERE tenant_id=$1 AND user_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, query, tenantID, userID)
	var proj domain.StreakProjection
	if err := row.Scan(&proj.TenantID, &proj.UserID, &proj.DailiesCount, &proj.DayCount, &proj.WeekCount, &proj.MonthCount, &proj.YearCount, &proj.CurrentTier, &proj.LastLogAt, &proj.StreakStartDay, &proj.ComputedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &proj, nil
}

// UpsertStreakProjection writes the recomputed summary row for a user.
func (r *Repository) UpsertStreakProjection(ctx context.Context, proj domain.StreakProjection) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", proj.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO streak_summaries (tenant_id, user_id, dailies_count, day_count, week_count, month_count, year_count, current_tier, last_log_at, streak_start_day, computed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (tenant_id, user_id) DO UPDATE SET
            dailies_count=EXCLUDED.dailies_count,
            day_count=EXCLUDED.day_count,
            week_count=EXCLUDED.week_count,
            month_count=EXCLUDED.month_count,
            year_count=EXCLUDED.year_count,
            current_tier=EXCLUDED.current_tier,
            last_log_at=EXCLUDED.last_log_at,
            streak_start_day=EXCLUDED.streak_start_day,
            computed_at=EXCLUDED.computed_at`

	_, err = tx.Exec(ctx, stmt,
		proj.TenantID,
		proj.UserID,
		proj.DailiesCount,
		proj.DayCount,
		proj.WeekCount,
		proj.MonthCount,
		proj.YearCount,
		proj.CurrentTier,
		proj.LastLogAt,
		proj.StreakStartDay,
		proj.ComputedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkObservationReflected flips a pending observation to reflected once the
// projection has folded it in, emitting the state change through the outbox.
// Already-reflected or deleted observations are a no-op.
func (r *Repository) MarkObservationReflected(ctx context.Context, tenantID, observationID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	now := time.Now().UTC()
	const update = `UPDATE observations
        SET processing_state=$3, updated_at=$4
        WHERE tenant_id=$1 AND observation_id=$2 AND processing_state=$5
        RETURNING user_id`

	var userID string
	if err = tx.QueryRow(ctx, update, tenantID, observationID, domain.ObservationStateReflected, now, domain.ObservationStatePending).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tx.Commit(ctx)
		}
		return err
	}

	marker := domain.Observation{ID: observationID, TenantID: tenantID, UserID: userID, UpdatedAt: now}
	if err = insertOutbox(ctx, tx, marker, "observation.state_changed", events.ObservationStateChanged{
		ObservationID: observationID,
		TenantID:      tenantID,
		UserID:        userID,
		State:         string(domain.ObservationStateReflected),
		OccurredAt:    now,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordObservationReflected(now)
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, obs domain.Observation, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(obs)
	dedupeKey := fmt.Sprintf("%s:%s:%d", obs.ID, eventType, obs.UpdatedAt.UnixNano())

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		obs.TenantID,
		"observation",
		obs.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func scanObservation(row pgx.Row) (*domain.Observation, error) {
	var obs domain.Observation
	if err := row.Scan(&obs.ID, &obs.TenantID, &obs.UserID, &obs.RecordedAt, &obs.Energy, &obs.Focus, &obs.Note, &obs.ImageURL, &obs.Version, &obs.State, &obs.CreatedAt, &obs.UpdatedAt); err != nil {
		return nil, err
	}
	return &obs, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Observation) string
}

var eventCatalog = map[string]EventMetadata{
	// observation_events carries three payload shapes, so each event type
	// registers under its own record-name subject.
	"observation.recorded": {
		Topic:         "observation_events",
		SchemaSubject: "observation_events-ObservationRecorded",
		PartitionKeyFn: func(o domain.Observation) string {
			return fmt.Sprintf("%s:%s", o.TenantID, o.UserID)
		},
	},
	"observation.amended": {
		Topic:         "observation_events",
		SchemaSubject: "observation_events-ObservationAmended",
		PartitionKeyFn: func(o domain.Observation) string {
			return fmt.Sprintf("%s:%s", o.TenantID, o.UserID)
		},
	},
	"observation.removed": {
		Topic:         "observation_events",
		SchemaSubject: "observation_events-ObservationRemoved",
		PartitionKeyFn: func(o domain.Observation) string {
			return fmt.Sprintf("%s:%s", o.TenantID, o.UserID)
		},
	},
	"observation.state_changed": {
		Topic:         "observation_state_changed",
		SchemaSubject: "observation_state_changed-value",
		PartitionKeyFn: func(o domain.Observation) string {
			return o.ID
		},
	},
}

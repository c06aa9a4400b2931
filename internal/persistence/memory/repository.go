// Package memory provides an in-memory repository for local development and
// tests. It mirrors the Postgres repository's semantics without the outbox.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/pulselog/internal/domain"
)

// Repository stores observations and streak projections in memory.
type Repository struct {
	mu           sync.RWMutex
	observations map[string]domain.Observation
	idempotency  map[string]string
	projections  map[string]domain.StreakProjection
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		observations: make(map[string]domain.Observation),
		idempotency:  make(map[string]string),
		projections:  make(map[string]domain.StreakProjection),
	}
}

func idemKey(tenantID, userID, key string) string {
	return tenantID + "/" + userID + "/" + key
}

func projKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

// FindByIdempotency implements domain.Repository.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.Observation, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.idempotency[idemKey(tenantID, userID, idempotencyKey)]
	if !ok {
		return nil, nil
	}
	obs, ok := r.observations[id]
	if !ok {
		return nil, nil
	}
	return &obs, nil
}

// Create implements domain.Repository.
func (r *Repository) Create(ctx context.Context, obs domain.Observation, idempotencyKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observations[obs.ID] = obs
	if idempotencyKey != "" {
		r.idempotency[idemKey(obs.TenantID, obs.UserID, idempotencyKey)] = obs.ID
	}
	return nil
}

// Get implements domain.Repository.
func (r *Repository) Get(ctx context.Context, tenantID, observationID string) (*domain.Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obs, ok := r.observations[observationID]
	if !ok || obs.TenantID != tenantID {
		return nil, nil
	}
	return &obs, nil
}

// Amend implements domain.Repository.
func (r *Repository) Amend(ctx context.Context, obs domain.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.observations[obs.ID]
	if !ok || stored.TenantID != obs.TenantID {
		return domain.ErrObservationNotFound
	}
	r.observations[obs.ID] = obs
	return nil
}

// Remove implements domain.Repository.
func (r *Repository) Remove(ctx context.Context, obs domain.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.observations[obs.ID]
	if !ok || stored.TenantID != obs.TenantID {
		return domain.ErrObservationNotFound
	}
	delete(r.observations, obs.ID)
	return nil
}

// ListByUser implements domain.Repository.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]domain.Observation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]domain.Observation, 0)
	for _, obs := range r.observations {
		if obs.TenantID == tenantID && obs.UserID == userID {
			results = append(results, obs)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].RecordedAt.Equal(results[j].RecordedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].RecordedAt.After(results[j].RecordedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// HistoryInstants implements domain.Repository.
func (r *Repository) HistoryInstants(ctx context.Context, tenantID, userID string) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var instants []time.Time
	for _, obs := range r.observations {
		if obs.TenantID == tenantID && obs.UserID == userID {
			instants = append(instants, obs.RecordedAt)
		}
	}
	return instants, nil
}

// StreakProjection implements domain.Repository.
func (r *Repository) StreakProjection(ctx context.Context, tenantID, userID string) (*domain.StreakProjection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	proj, ok := r.projections[projKey(tenantID, userID)]
	if !ok {
		return nil, nil
	}
	return &proj, nil
}

// UpsertStreakProjection stores the recomputed summary row.
func (r *Repository) UpsertStreakProjection(ctx context.Context, proj domain.StreakProjection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.projections[projKey(proj.TenantID, proj.UserID)] = proj
	return nil
}

// MarkObservationReflected flips a pending observation to reflected.
func (r *Repository) MarkObservationReflected(ctx context.Context, tenantID, observationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obs, ok := r.observations[observationID]
	if !ok || obs.TenantID != tenantID || obs.State != domain.ObservationStatePending {
		return nil
	}
	obs.State = domain.ObservationStateReflected
	obs.UpdatedAt = time.Now().UTC()
	r.observations[observationID] = obs
	return nil
}

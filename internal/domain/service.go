// Package domain defines the business logic for the pulselog service.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"example.com/pulselog/internal/observability"
	"example.com/pulselog/internal/streak"
)

var (
	// ErrObservationNotFound is returned when an observation cannot be located.
	ErrObservationNotFound = errors.New("observation not found")
	// ErrProjectionNotFound is returned when no streak projection exists for the user yet.
	ErrProjectionNotFound = errors.New("streak projection not found")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Repository captures persistence operations.
type Repository interface {
	FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*Observation, error)
	Create(ctx context.Context, obs Observation, idempotencyKey string) error
	Get(ctx context.Context, tenantID, observationID string) (*Observation, error)
	Amend(ctx context.Context, obs Observation) error
	Remove(ctx context.Context, obs Observation) error
	ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]Observation, error)
	HistoryInstants(ctx context.Context, tenantID, userID string) ([]time.Time, error)
	StreakProjection(ctx context.Context, tenantID, userID string) (*StreakProjection, error)
}

// Service orchestrates observation workflows.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordInput captures the payload from the API layer.
type RecordInput struct {
	TenantID       string
	UserID         string
	RecordedAt     time.Time
	Energy         int
	Focus          int
	Note           string
	ImageURL       string
	IdempotencyKey string
}

// AmendInput is a partial update; nil fields keep their stored value.
type AmendInput struct {
	TenantID      string
	ObservationID string
	RecordedAt    *time.Time
	Energy        *int
	Focus         *int
	Note          *string
	ImageURL      *string
}

// Record handles idempotent create semantics and outbox recording.
func (s *Service) Record(ctx context.Context, input RecordInput) (*Observation, bool, error) {
	if existing, err := s.repo.FindByIdempotency(ctx, input.TenantID, input.UserID, input.IdempotencyKey); err == nil && existing != nil {
		return existing, true, nil
	}

	now := time.Now().UTC()
	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = now
	}
	obs := Observation{
		ID:         uuid.NewString(),
		TenantID:   input.TenantID,
		UserID:     input.UserID,
		RecordedAt: recordedAt.UTC(),
		Energy:     input.Energy,
		Focus:      input.Focus,
		Note:       input.Note,
		ImageURL:   input.ImageURL,
		Version:    "v1",
		State:      ObservationStatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, obs, input.IdempotencyKey); err != nil {
		return nil, false, err
	}

	return &obs, false, nil
}

// Amend applies a partial update and resets the observation to pending so
// the projection pipeline re-derives the streak.
func (s *Service) Amend(ctx context.Context, input AmendInput) (*Observation, error) {
	obs, err := s.Get(ctx, input.TenantID, input.ObservationID)
	if err != nil {
		return nil, err
	}

	updated := *obs
	if input.RecordedAt != nil {
		updated.RecordedAt = input.RecordedAt.UTC()
	}
	if input.Energy != nil {
		updated.Energy = *input.Energy
	}
	if input.Focus != nil {
		updated.Focus = *input.Focus
	}
	if input.Note != nil {
		updated.Note = *input.Note
	}
	if input.ImageURL != nil {
		updated.ImageURL = *input.ImageURL
	}
	updated.State = ObservationStatePending
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.Amend(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Remove deletes an observation and emits the removal event.
func (s *Service) Remove(ctx context.Context, tenantID, observationID string) error {
	obs, err := s.Get(ctx, tenantID, observationID)
	if err != nil {
		return err
	}
	return s.repo.Remove(ctx, *obs)
}

// Get fetches by ID.
func (s *Service) Get(ctx context.Context, tenantID, observationID string) (*Observation, error) {
	obs, err := s.repo.Get(ctx, tenantID, observationID)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, ErrObservationNotFound
	}
	return obs, nil
}

// ListByUser fetches observations newest first, bounded by limit.
func (s *Service) ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByUser(ctx, tenantID, userID, limit)
}

// StreakSummary recomputes the streak from the full history. Every read
// re-derives from scratch; nothing incremental is kept.
func (s *Service) StreakSummary(ctx context.Context, tenantID, userID string, at time.Time) (streak.Summary, error) {
	instants, err := s.repo.HistoryInstants(ctx, tenantID, userID)
	if err != nil {
		return streak.Summary{}, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	start := time.Now()
	summary := streak.Compute(instants, at)
	observability.ObserveStreakRecompute(time.Since(start))
	return summary, nil
}

// StreakProjection reads the consumer-maintained summary row.
func (s *Service) StreakProjection(ctx context.Context, tenantID, userID string) (*StreakProjection, error) {
	proj, err := s.repo.StreakProjection(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if proj == nil {
		return nil, ErrProjectionNotFound
	}
	return proj, nil
}

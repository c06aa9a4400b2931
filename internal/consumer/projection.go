package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"example.com/pulselog/internal/cache"
	"example.com/pulselog/internal/domain"
	"example.com/pulselog/internal/events"
	"example.com/pulselog/internal/streak"
)

// ProjectionStore is the slice of the persistence layer the projection
// handler needs: observation history in, streak summary out.
type ProjectionStore interface {
	HistoryInstants(ctx context.Context, tenantID, userID string) ([]time.Time, error)
	UpsertStreakProjection(ctx context.Context, proj domain.StreakProjection) error
	MarkObservationReflected(ctx context.Context, tenantID, observationID string) error
}

// ProjectionOption configures optional behaviour for the ProjectionHandler.
type ProjectionOption func(*ProjectionHandler)

// WithInvalidator sets the edge cache invalidator fired after each upsert.
func WithInvalidator(inv cache.Invalidator) ProjectionOption {
	return func(h *ProjectionHandler) {
		h.invalidator = inv
	}
}

// WithProjectionLogger overrides the logger used by the handler.
func WithProjectionLogger(logger *log.Logger) ProjectionOption {
	return func(h *ProjectionHandler) {
		h.logger = logger
	}
}

// ProjectionHandler folds observation events into per-user streak summaries.
// Every event triggers a full recompute from history; the projection is
// idempotent, so redelivered messages converge on the same row.
type ProjectionHandler struct {
	store       ProjectionStore
	loc         *time.Location
	invalidator cache.Invalidator
	logger      *log.Logger
}

// NewProjectionHandler constructs a handler that projects in the given
// location. A nil location falls back to UTC.
func NewProjectionHandler(store ProjectionStore, loc *time.Location, opts ...ProjectionOption) *ProjectionHandler {
	h := &ProjectionHandler{
		store:       store,
		loc:         loc,
		invalidator: cache.NoopInvalidator{},
		logger:      log.New(log.Writer(), "[projection] ", log.LstdFlags|log.Lshortfile),
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle recomputes the streak summary for the user named by the event and
// marks the source observation reflected. State change notifications are
// skipped so reflected markers do not feed back into the projection.
func (h *ProjectionHandler) Handle(ctx context.Context, msg Message) error {
	var tenantID, userID, observationID string

	switch msg.EventType {
	case "observation.recorded":
		var evt events.ObservationRecorded
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode recorded payload: %w", err)
		}
		tenantID, userID, observationID = evt.TenantID, evt.UserID, evt.ObservationID
	case "observation.amended":
		var evt events.ObservationAmended
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode amended payload: %w", err)
		}
		tenantID, userID, observationID = evt.TenantID, evt.UserID, evt.ObservationID
	case "observation.removed":
		var evt events.ObservationRemoved
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode removed payload: %w", err)
		}
		// The row is gone; recompute only.
		tenantID, userID = evt.TenantID, evt.UserID
	case "observation.state_changed":
		return nil
	default:
		h.logger.Printf("ignoring unhandled event type %q (topic=%s)", msg.EventType, msg.Topic)
		return nil
	}

	if tenantID == "" || userID == "" {
		return fmt.Errorf("event %s is missing tenant or user identity", msg.EventType)
	}

	if err := h.recompute(ctx, tenantID, userID); err != nil {
		return err
	}

	if observationID != "" {
		if err := h.store.MarkObservationReflected(ctx, tenantID, observationID); err != nil {
			return fmt.Errorf("mark observation reflected: %w", err)
		}
	}

	if err := h.invalidator.Invalidate(ctx, tenantID, userID); err != nil {
		h.logger.Printf("cache invalidation failed (tenant=%s, user=%s): %v", tenantID, userID, err)
	}

	recordProjection(msg.EventType)
	return nil
}

func (h *ProjectionHandler) recompute(ctx context.Context, tenantID, userID string) error {
	instants, err := h.store.HistoryInstants(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("load observation history: %w", err)
	}

	now := time.Now().In(h.loc)
	summary := streak.Compute(instants, now)

	proj := domain.StreakProjection{
		TenantID:       tenantID,
		UserID:         userID,
		DailiesCount:   summary.DailiesCount,
		DayCount:       summary.DayCount,
		WeekCount:      summary.WeekCount,
		MonthCount:     summary.MonthCount,
		YearCount:      summary.YearCount,
		CurrentTier:    summary.CurrentTier,
		LastLogAt:      summary.LastLogAt,
		StreakStartDay: summary.StreakStartDay,
		ComputedAt:     now,
	}
	if err := h.store.UpsertStreakProjection(ctx, proj); err != nil {
		return fmt.Errorf("upsert streak projection: %w", err)
	}
	return nil
}

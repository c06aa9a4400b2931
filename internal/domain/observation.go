package domain

import "time"

// ObservationState represents the projection status of an observation.
type ObservationState string

const (
	// ObservationStatePending marks a mutation not yet folded into the
	// streak projection.
	ObservationStatePending ObservationState = "pending"
	// ObservationStateReflected marks an observation the projection has
	// caught up with.
	ObservationStateReflected ObservationState = "reflected"
	// ObservationStateFailed marks an observation quarantined by the
	// dead-letter flow.
	ObservationStateFailed ObservationState = "failed"
)

// Observation is the canonical self-observation record stored in PostgreSQL
// and replayed to downstream stores.
type Observation struct {
	ID         string
	TenantID   string
	UserID     string
	RecordedAt time.Time
	Energy     int
	Focus      int
	Note       string
	ImageURL   string
	Version    string
	State      ObservationState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StreakProjection is the consumer-maintained streak summary row for one
// user. The engine output is denormalized so reads never recompute.
type StreakProjection struct {
	TenantID       string
	UserID         string
	DailiesCount   int
	DayCount       int
	WeekCount      int
	MonthCount     int
	YearCount      int
	CurrentTier    int
	LastLogAt      *time.Time
	StreakStartDay string
	ComputedAt     time.Time
}

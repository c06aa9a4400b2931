// Package events defines the event payloads published to downstream consumers.
package events

import "time"

// ObservationRecorded is emitted when a new observation is accepted.
type ObservationRecorded struct {
	ObservationID string    `json:"observation_id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Energy        int       `json:"energy"`
	Focus         int       `json:"focus"`
	OccurredAt    time.Time `json:"occurred_at"`
	Version       string    `json:"version"`
}

// ObservationAmended is emitted when an observation's fields are edited,
// including timestamp moves that can reshape the streak.
type ObservationAmended struct {
	ObservationID string    `json:"observation_id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Energy        int       `json:"energy"`
	Focus         int       `json:"focus"`
	OccurredAt    time.Time `json:"occurred_at"`
	Version       string    `json:"version"`
}

// ObservationRemoved is emitted when an observation is deleted.
type ObservationRemoved struct {
	ObservationID string    `json:"observation_id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	RecordedAt    time.Time `json:"recorded_at"`
	OccurredAt    time.Time `json:"occurred_at"`
	Version       string    `json:"version"`
}

// ObservationStateChanged tracks state transitions (pending, reflected,
// failed) for optimistic UI flows.
type ObservationStateChanged struct {
	ObservationID string    `json:"observation_id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	State         string    `json:"state"`
	OccurredAt    time.Time `json:"occurred_at"`
	Reason        string    `json:"reason,omitempty"`
}

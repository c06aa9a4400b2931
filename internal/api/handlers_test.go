package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/pulselog/internal/domain"
)

func TestRecordObservationSuccess(t *testing.T) {
	repo := newMockRepo()
	service := domain.NewService(repo)
	handler := NewHandler(service)

	body := `{"user_id":"user-1","energy":6,"focus":4,"note":"deep work"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/observations", strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "tenant-1")
	req.Header.Set("Idempotency-Key", "key-1")

	rr := httptest.NewRecorder()
	handler.recordObservation(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp RecordObservationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ObservationID == "" {
		t.Fatal("expected observation id in response")
	}
	if resp.Status != string(domain.ObservationStatePending) {
		t.Fatalf("expected pending status got %s", resp.Status)
	}
	if resp.Replay {
		t.Fatal("expected fresh record, not replay")
	}
	if len(repo.created) != 1 || repo.created[0].TenantID != "tenant-1" {
		t.Fatalf("unexpected create calls: %+v", repo.created)
	}
}

func TestRecordObservationRejectsOutOfRangeEnergy(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo()))

	body := `{"user_id":"user-1","energy":9,"focus":4}`
	req := httptest.NewRequest(http.MethodPost, "/v1/observations", strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.recordObservation(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestRecordObservationRequiresTenantHeader(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo()))

	body := `{"user_id":"user-1","energy":5,"focus":5}`
	req := httptest.NewRequest(http.MethodPost, "/v1/observations", strings.NewReader(body))

	rr := httptest.NewRecorder()
	handler.recordObservation(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestRecordObservationIdempotentReplay(t *testing.T) {
	repo := newMockRepo()
	existing := domain.Observation{
		ID:       "obs-1",
		TenantID: "tenant-1",
		UserID:   "user-1",
		Energy:   3,
		Focus:    3,
		State:    domain.ObservationStateReflected,
	}
	repo.byIdem["tenant-1/user-1/key-dup"] = &existing
	handler := NewHandler(domain.NewService(repo))

	body := `{"user_id":"user-1","energy":8,"focus":8}`
	req := httptest.NewRequest(http.MethodPost, "/v1/observations", strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "tenant-1")
	req.Header.Set("Idempotency-Key", "key-dup")

	rr := httptest.NewRecorder()
	handler.recordObservation(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for replay got %d", rr.Code)
	}
	var resp RecordObservationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Replay || resp.ObservationID != "obs-1" {
		t.Fatalf("unexpected replay response: %+v", resp)
	}
	if len(repo.created) != 0 {
		t.Fatalf("replay must not create, got %d creates", len(repo.created))
	}
}

func TestGetObservationNotFound(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo()))

	req := httptest.NewRequest(http.MethodGet, "/v1/observations/missing", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.observationByID(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestAmendObservationUpdatesFields(t *testing.T) {
	repo := newMockRepo()
	repo.stored["obs-1"] = &domain.Observation{
		ID:         "obs-1",
		TenantID:   "tenant-1",
		UserID:     "user-1",
		RecordedAt: time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC),
		Energy:     2,
		Focus:      6,
		Version:    "v1",
		State:      domain.ObservationStateReflected,
	}
	handler := NewHandler(domain.NewService(repo))

	body := `{"energy":7}`
	req := httptest.NewRequest(http.MethodPatch, "/v1/observations/obs-1", strings.NewReader(body))
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.observationByID(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var view ObservationView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Energy != 7 || view.Focus != 6 {
		t.Fatalf("unexpected amended view: %+v", view)
	}
	if view.Status != string(domain.ObservationStatePending) {
		t.Fatalf("expected amend to reset status to pending, got %s", view.Status)
	}
}

func TestAmendObservationRejectsEmptyPatch(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo()))

	req := httptest.NewRequest(http.MethodPatch, "/v1/observations/obs-1", strings.NewReader(`{}`))
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.observationByID(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestRemoveObservation(t *testing.T) {
	repo := newMockRepo()
	repo.stored["obs-1"] = &domain.Observation{ID: "obs-1", TenantID: "tenant-1", UserID: "user-1"}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodDelete, "/v1/observations/obs-1", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.observationByID(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	if len(repo.removed) != 1 || repo.removed[0] != "obs-1" {
		t.Fatalf("unexpected removals: %v", repo.removed)
	}
}

func TestListObservations(t *testing.T) {
	now := time.Date(2025, time.May, 2, 12, 0, 0, 0, time.UTC)
	repo := newMockRepo()
	repo.list = []domain.Observation{
		{ID: "obs-2", TenantID: "tenant-1", UserID: "user-1", RecordedAt: now, Energy: 5, Focus: 5, Version: "v1", State: domain.ObservationStatePending},
		{ID: "obs-1", TenantID: "tenant-1", UserID: "user-1", RecordedAt: now.Add(-time.Hour), Energy: 4, Focus: 6, Version: "v1", State: domain.ObservationStateReflected},
	}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/observations?user_id=user-1", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.listObservations(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var resp ListObservationsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ObservationID != "obs-2" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
}

func TestStreakSummaryEndpoint(t *testing.T) {
	at := time.Date(2025, time.May, 2, 12, 0, 0, 0, time.UTC)
	repo := newMockRepo()
	repo.instants = []time.Time{
		at.Add(-time.Hour),
		at.Add(-25 * time.Hour),
	}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/streak?user_id=user-1&at=2025-05-02T12:00:00Z", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.streakSummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp StreakSummaryView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.DayCount != 2 || resp.DailiesCount != 1 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
	if !resp.AsOf.Equal(at) {
		t.Fatalf("expected as_of %v got %v", at, resp.AsOf)
	}
}

func TestStreakSummaryRejectsBadTimestamp(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo()))

	req := httptest.NewRequest(http.MethodGet, "/v1/streak?user_id=user-1&at=yesterday", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.streakSummary(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestStreakProjectionEndpoint(t *testing.T) {
	lastLog := time.Date(2025, time.May, 2, 11, 0, 0, 0, time.UTC)
	repo := newMockRepo()
	repo.projection = &domain.StreakProjection{
		TenantID:       "tenant-1",
		UserID:         "user-1",
		DailiesCount:   3,
		DayCount:       12,
		WeekCount:      1,
		CurrentTier:    2,
		LastLogAt:      &lastLog,
		StreakStartDay: "2025-04-21",
		ComputedAt:     lastLog.Add(time.Second),
	}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/streak/projection?user_id=user-1", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.streakProjection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var resp StreakProjectionView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.DayCount != 12 || resp.CurrentTier != 2 || resp.StreakStartDay != "2025-04-21" {
		t.Fatalf("unexpected projection view: %+v", resp)
	}
}

func TestStreakProjectionMissing(t *testing.T) {
	handler := NewHandler(domain.NewService(newMockRepo()))

	req := httptest.NewRequest(http.MethodGet, "/v1/streak/projection?user_id=user-1", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")

	rr := httptest.NewRecorder()
	handler.streakProjection(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

type mockRepo struct {
	stored     map[string]*domain.Observation
	byIdem     map[string]*domain.Observation
	list       []domain.Observation
	instants   []time.Time
	projection *domain.StreakProjection
	created    []domain.Observation
	removed    []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		stored: make(map[string]*domain.Observation),
		byIdem: make(map[string]*domain.Observation),
	}
}

func (m *mockRepo) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.Observation, error) {
	return m.byIdem[tenantID+"/"+userID+"/"+idempotencyKey], nil
}

func (m *mockRepo) Create(ctx context.Context, obs domain.Observation, idempotencyKey string) error {
	m.created = append(m.created, obs)
	stored := obs
	m.stored[obs.ID] = &stored
	return nil
}

func (m *mockRepo) Get(ctx context.Context, tenantID, observationID string) (*domain.Observation, error) {
	obs, ok := m.stored[observationID]
	if !ok || obs.TenantID != tenantID {
		return nil, nil
	}
	copied := *obs
	return &copied, nil
}

func (m *mockRepo) Amend(ctx context.Context, obs domain.Observation) error {
	stored := obs
	m.stored[obs.ID] = &stored
	return nil
}

func (m *mockRepo) Remove(ctx context.Context, obs domain.Observation) error {
	m.removed = append(m.removed, obs.ID)
	delete(m.stored, obs.ID)
	return nil
}

func (m *mockRepo) ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]domain.Observation, error) {
	if limit > len(m.list) {
		limit = len(m.list)
	}
	out := make([]domain.Observation, limit)
	copy(out, m.list[:limit])
	return out, nil
}

func (m *mockRepo) HistoryInstants(ctx context.Context, tenantID, userID string) ([]time.Time, error) {
	return m.instants, nil
}

func (m *mockRepo) StreakProjection(ctx context.Context, tenantID, userID string) (*domain.StreakProjection, error) {
	return m.projection, nil
}

// Package api exposes HTTP handlers for the pulselog service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/pulselog/internal/domain"
	"example.com/pulselog/internal/streak"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/observations", h.observations)
	mux.HandleFunc("/v1/observations/", h.observationByID)
	mux.HandleFunc("/v1/streak", h.streakSummary)
	mux.HandleFunc("/v1/streak/projection", h.streakProjection)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// tenantFrom extracts the tenant from the X-Tenant-ID header set by the
// authenticating gateway.
func tenantFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
}

func (h *Handler) observations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.recordObservation(w, r)
	case http.MethodGet:
		h.listObservations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) observationByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/observations/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing observation id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getObservation(w, r, id)
	case http.MethodPatch:
		h.amendObservation(w, r, id)
	case http.MethodDelete:
		h.removeObservation(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) recordObservation(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Tenant-ID header")
		return
	}

	var req RecordObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	obs, replay, err := h.service.Record(r.Context(), domain.RecordInput{
		TenantID:       tenantID,
		UserID:         req.UserID,
		RecordedAt:     req.RecordedAt,
		Energy:         req.Energy,
		Focus:          req.Focus,
		Note:           req.Note,
		ImageURL:       req.ImageURL,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := RecordObservationResponse{
		ObservationID: obs.ID,
		Status:        string(obs.State),
		Replay:        replay,
	}

	status := http.StatusAccepted
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) getObservation(w http.ResponseWriter, r *http.Request, id string) {
	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Tenant-ID header")
		return
	}

	obs, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, domain.ErrObservationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "observation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toObservationView(*obs))
}

func (h *Handler) amendObservation(w http.ResponseWriter, r *http.Request, id string) {
	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Tenant-ID header")
		return
	}

	var req AmendObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	obs, err := h.service.Amend(r.Context(), domain.AmendInput{
		TenantID:      tenantID,
		ObservationID: id,
		RecordedAt:    req.RecordedAt,
		Energy:        req.Energy,
		Focus:         req.Focus,
		Note:          req.Note,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		if errors.Is(err, domain.ErrObservationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "observation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toObservationView(*obs))
}

func (h *Handler) removeObservation(w http.ResponseWriter, r *http.Request, id string) {
	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Tenant-ID header")
		return
	}

	if err := h.service.Remove(r.Context(), tenantID, id); err != nil {
		if errors.Is(err, domain.ErrObservationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "observation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listObservations(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Tenant-ID header")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.service.ListByUser(r.Context(), tenantID, userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	views := make([]ObservationView, 0, len(items))
	for _, obs := range items {
		views = append(views, toObservationView(obs))
	}

	writeJSON(w, http.StatusOK, ListObservationsResponse{Items: views})
}

// streakSummary recomputes the streak from the full history on every call.
// at and tz let clients evaluate the streak for a different instant or zone.
func (h *Handler) streakSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Tenant-ID header")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	at := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "at must be RFC3339")
			return
		}
		at = parsed
	}

	if raw := r.URL.Query().Get("tz"); raw != "" {
		loc, err := time.LoadLocation(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown tz")
			return
		}
		at = at.In(loc)
	}

	summary, err := h.service.StreakSummary(r.Context(), tenantID, userID, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toStreakView(summary, at))
}

func (h *Handler) streakProjection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	tenantID := tenantFrom(r)
	if tenantID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-Tenant-ID header")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	proj, err := h.service.StreakProjection(r.Context(), tenantID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProjectionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no streak projection for user")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := StreakProjectionView{
		UserID:         proj.UserID,
		DailiesCount:   proj.DailiesCount,
		DayCount:       proj.DayCount,
		WeekCount:      proj.WeekCount,
		MonthCount:     proj.MonthCount,
		YearCount:      proj.YearCount,
		CurrentTier:    proj.CurrentTier,
		LastLogAt:      proj.LastLogAt,
		StreakStartDay: proj.StreakStartDay,
		ComputedAt:     proj.ComputedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

// RecordObservationRequest is the payload for POST /v1/observations.
type RecordObservationRequest struct {
	UserID     string    `json:"user_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Energy     int       `json:"energy"`
	Focus      int       `json:"focus"`
	Note       string    `json:"note"`
	ImageURL   string    `json:"image_url"`
}

// Validate ensures request correctness.
func (r RecordObservationRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if r.Energy < 1 || r.Energy > 8 {
		return errors.New("energy must be between 1 and 8")
	}
	if r.Focus < 1 || r.Focus > 8 {
		return errors.New("focus must be between 1 and 8")
	}
	return nil
}

// AmendObservationRequest is the payload for PATCH /v1/observations/{id}.
// Absent fields keep their stored value.
type AmendObservationRequest struct {
	RecordedAt *time.Time `json:"recorded_at"`
	Energy     *int       `json:"energy"`
	Focus      *int       `json:"focus"`
	Note       *string    `json:"note"`
	ImageURL   *string    `json:"image_url"`
}

// Validate ensures request correctness.
func (r AmendObservationRequest) Validate() error {
	if r.RecordedAt == nil && r.Energy == nil && r.Focus == nil && r.Note == nil && r.ImageURL == nil {
		return errors.New("at least one field must be provided")
	}
	if r.Energy != nil && (*r.Energy < 1 || *r.Energy > 8) {
		return errors.New("energy must be between 1 and 8")
	}
	if r.Focus != nil && (*r.Focus < 1 || *r.Focus > 8) {
		return errors.New("focus must be between 1 and 8")
	}
	if r.RecordedAt != nil && r.RecordedAt.IsZero() {
		return errors.New("recorded_at must be a valid timestamp")
	}
	return nil
}

// RecordObservationResponse describes the response body for record.
type RecordObservationResponse struct {
	ObservationID string `json:"observation_id"`
	Status        string `json:"status"`
	Replay        bool   `json:"idempotent_replay"`
}

// ObservationView exposes full details about an observation.
type ObservationView struct {
	ObservationID string    `json:"observation_id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Energy        int       `json:"energy"`
	Focus         int       `json:"focus"`
	Note          string    `json:"note,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	Version       string    `json:"version"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListObservationsResponse packages list results.
type ListObservationsResponse struct {
	Items []ObservationView `json:"items"`
}

// StreakSummaryView is the engine output for the live endpoint.
type StreakSummaryView struct {
	DailiesCount   int        `json:"dailies_count"`
	DayCount       int        `json:"day_count"`
	WeekCount      int        `json:"week_count"`
	MonthCount     int        `json:"month_count"`
	YearCount      int        `json:"year_count"`
	CurrentTier    int        `json:"current_tier"`
	LastLogAt      *time.Time `json:"last_log_at,omitempty"`
	StreakStartDay string     `json:"streak_start_day,omitempty"`
	AsOf           time.Time  `json:"as_of"`
}

// StreakProjectionView is the consumer-maintained summary row.
type StreakProjectionView struct {
	UserID         string     `json:"user_id"`
	DailiesCount   int        `json:"dailies_count"`
	DayCount       int        `json:"day_count"`
	WeekCount      int        `json:"week_count"`
	MonthCount     int        `json:"month_count"`
	YearCount      int        `json:"year_count"`
	CurrentTier    int        `json:"current_tier"`
	LastLogAt      *time.Time `json:"last_log_at,omitempty"`
	StreakStartDay string     `json:"streak_start_day,omitempty"`
	ComputedAt     time.Time  `json:"computed_at"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toObservationView(obs domain.Observation) ObservationView {
	return ObservationView{
		ObservationID: obs.ID,
		TenantID:      obs.TenantID,
		UserID:        obs.UserID,
		RecordedAt:    obs.RecordedAt,
		Energy:        obs.Energy,
		Focus:         obs.Focus,
		Note:          obs.Note,
		ImageURL:      obs.ImageURL,
		Version:       obs.Version,
		Status:        string(obs.State),
		CreatedAt:     obs.CreatedAt,
		UpdatedAt:     obs.UpdatedAt,
	}
}

func toStreakView(summary streak.Summary, asOf time.Time) StreakSummaryView {
	return StreakSummaryView{
		DailiesCount:   summary.DailiesCount,
		DayCount:       summary.DayCount,
		WeekCount:      summary.WeekCount,
		MonthCount:     summary.MonthCount,
		YearCount:      summary.YearCount,
		CurrentTier:    summary.CurrentTier,
		LastLogAt:      summary.LastLogAt,
		StreakStartDay: summary.StreakStartDay,
		AsOf:           asOf,
	}
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/pulselog/internal/persistence/sqlite"
)

// apiClient pushes local entries to the pulselog service.
type apiClient struct {
	baseURL string
	tenant  string
	http    *http.Client
}

func newAPIClient(baseURL, tenant string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tenant:  tenant,
		http:    &http.Client{Timeout: timeout},
	}
}

// pushRequest mirrors the service's record payload.
type pushRequest struct {
	UserID     string    `json:"user_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Energy     int       `json:"energy"`
	Focus      int       `json:"focus"`
	Note       string    `json:"note,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
}

// push uploads one entry. The entry's ULID rides along as the idempotency
// key, so retried pushes replay instead of duplicating.
func (c *apiClient) push(ctx context.Context, userID string, entry sqlite.Entry) error {
	body, err := json.Marshal(pushRequest{
		UserID:     userID,
		RecordedAt: entry.RecordedAt,
		Energy:     entry.Energy,
		Focus:      entry.Focus,
		Note:       entry.Note,
		ImageURL:   entry.ImageURL,
	})
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/observations", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenant)
	req.Header.Set("Idempotency-Key", entry.ID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
}

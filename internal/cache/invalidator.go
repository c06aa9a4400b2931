// Package cache invalidates edge-cached badge views when a user's streak
// projection changes.
package cache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Invalidator defines a cache invalidation contract keyed by tenant and user.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID, userID string) error
}

// NoopInvalidator is a no-op implementation used when no edge cache is configured.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string, string) error { return nil }

// HTTPInvalidator calls an upstream edge cache invalidation endpoint.
type HTTPInvalidator struct {
	client *http.Client
	url    string
}

// NewHTTPInvalidator constructs an HTTPInvalidator.
func NewHTTPInvalidator(endpoint string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(endpoint, "/"),
	}
}

// Invalidate triggers an HTTP POST naming the streak view to purge.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, tenantID, userID string) error {
	key := fmt.Sprintf("streak:%s:%s", tenantID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(key))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &InvalidationError{Status: resp.StatusCode}
	}
	return nil
}

// InvalidationError represents a non-successful invalidation response.
type InvalidationError struct {
	Status int
}

func (e *InvalidationError) Error() string {
	return "cache invalidation failed with status " + http.StatusText(e.Status)
}

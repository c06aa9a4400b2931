package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"example.com/pulselog/internal/persistence/sqlite"
)

func newSyncStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPushEntriesMarksSyncedOnAccept(t *testing.T) {
	store := newSyncStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Insert(sqlite.Entry{RecordedAt: time.Now().Add(time.Duration(-i) * time.Hour), Energy: 4, Focus: 5}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/observations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Tenant-ID"); got != "acme" {
			t.Errorf("expected tenant header acme, got %q", got)
		}
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			t.Error("expected an idempotency key")
		}

		var body pushRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.UserID != "amelie" {
			t.Errorf("expected user_id amelie, got %q", body.UserID)
		}

		mu.Lock()
		keys = append(keys, key)
		mu.Unlock()

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pending, err := store.Unsynced()
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}

	client := newAPIClient(srv.URL, "acme", 5*time.Second)
	pushed, err := pushEntries(context.Background(), client, store, "amelie", pending, 2)
	if err != nil {
		t.Fatalf("push entries: %v", err)
	}
	if pushed != 3 {
		t.Fatalf("expected 3 pushed, got %d", pushed)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(keys))
	}

	remaining, err := store.Unsynced()
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no unsynced entries left, got %d", len(remaining))
	}
}

func TestPushEntriesTreatsReplayAsSuccess(t *testing.T) {
	store := newSyncStore(t)

	if _, err := store.Insert(sqlite.Entry{RecordedAt: time.Now(), Energy: 5, Focus: 5}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with idempotent_replay=true is what the service sends for a
		// key it has already seen.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"observation_id":"obs-1","status":"pending","idempotent_replay":true}`))
	}))
	defer srv.Close()

	pending, _ := store.Unsynced()
	client := newAPIClient(srv.URL, "acme", 5*time.Second)

	pushed, err := pushEntries(context.Background(), client, store, "amelie", pending, 1)
	if err != nil {
		t.Fatalf("push entries: %v", err)
	}
	if pushed != 1 {
		t.Fatalf("expected 1 pushed, got %d", pushed)
	}
}

func TestPushEntriesKeepsFailedEntriesUnsynced(t *testing.T) {
	store := newSyncStore(t)

	if _, err := store.Insert(sqlite.Entry{RecordedAt: time.Now(), Energy: 5, Focus: 5}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"server_error","detail":"boom"}`))
	}))
	defer srv.Close()

	pending, _ := store.Unsynced()
	client := newAPIClient(srv.URL, "acme", 5*time.Second)

	pushed, err := pushEntries(context.Background(), client, store, "amelie", pending, 1)
	if err == nil {
		t.Fatal("expected an error from a failing server")
	}
	if pushed != 0 {
		t.Fatalf("expected 0 pushed, got %d", pushed)
	}

	remaining, _ := store.Unsynced()
	if len(remaining) != 1 {
		t.Fatalf("failed entry should stay unsynced, got %d remaining", len(remaining))
	}
}

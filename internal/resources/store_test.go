// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package resources

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/aquasync/internal/gateway"
	"github.com/tomtom215/aquasync/internal/models"
	"github.com/tomtom215/aquasync/internal/querycache"
)

func nodeForTest(name string) models.Node {
	return models.Node{Name: name, Type: models.NodeTypeTank, CommunityID: "c1"}
}

// fakeBackend is a canned-response Requester that counts calls per
// method+path.
type fakeBackend struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(method, path string) ([]byte, error)
}

func newFakeBackend(respond func(method, path string) ([]byte, error)) *fakeBackend {
	return &fakeBackend{
		calls:   make(map[string]int),
		respond: respond,
	}
}

func (f *fakeBackend) Request(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls[method+" "+path]++
	f.mu.Unlock()
	return f.respond(method, path)
}

func (f *fakeBackend) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func newTestStore(t *testing.T, backend gateway.Requester) *Store {
	t.Helper()
	cache := querycache.New(time.Minute)
	t.Cleanup(cache.Close)
	store := NewStore(cache, backend, DefaultStaleTimes(), nil)
	t.Cleanup(store.Close)
	return store
}

func TestStore_NodesFetchAndCache(t *testing.T) {
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		return []byte(`[{"id":"n1","name":"Tank A","online":true}]`), nil
	})
	store := newTestStore(t, backend)

	first := store.Nodes("")
	if first.Err != "" {
		t.Errorf("Expected clean first read, got error %q", first.Err)
	}
	if first.Data == nil {
		t.Error("Expected non-nil collection even before data arrives")
	}

	waitFor(t, "nodes to load", func() bool {
		return len(store.Nodes("").Data) == 1
	})

	result := store.Nodes("")
	if result.Data[0].Name != "Tank A" {
		t.Errorf("Expected decoded node, got %+v", result.Data[0])
	}
	if result.Loading {
		t.Error("Expected loading cleared after fetch")
	}
	if result.LastUpdated.IsZero() {
		t.Error("Expected LastUpdated set after fetch")
	}
	if got := backend.count("GET", "/nodes"); got != 1 {
		t.Errorf("Expected repeated reads to hit the cache, got %d fetches", got)
	}
}

func TestStore_SearchVariantsAreSeparateSlots(t *testing.T) {
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		return []byte(`[]`), nil
	})
	store := newTestStore(t, backend)

	store.Nodes("")
	store.Nodes("tank")
	waitFor(t, "both variants to fetch", func() bool {
		return backend.count("GET", "/nodes") == 2
	})
}

func TestStore_ActiveAlertsUnauthorizedResolvesEmpty(t *testing.T) {
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		return nil, &gateway.Error{Kind: gateway.KindUnauthorized, Status: 401}
	})
	store := newTestStore(t, backend)

	store.ActiveAlerts()
	waitFor(t, "alerts to settle", func() bool {
		r := store.ActiveAlerts()
		return !r.Loading
	})

	result := store.ActiveAlerts()
	if result.Err != "" {
		t.Errorf("Expected signed-out alerts read to carry no error, got %q", result.Err)
	}
	if result.Data == nil || len(result.Data) != 0 {
		t.Errorf("Expected empty alert collection, got %v", result.Data)
	}
	// Unauthorized resolved to a default is a success: no retries.
	if got := backend.count("GET", "/alerts/active"); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
}

func TestStore_StatsUnauthorizedResolvesZero(t *testing.T) {
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		return nil, &gateway.Error{Kind: gateway.KindUnauthorized, Status: 401}
	})
	store := newTestStore(t, backend)

	store.Stats()
	waitFor(t, "stats to settle", func() bool {
		return !store.Stats().Loading
	})

	result := store.Stats()
	if result.Err != "" {
		t.Errorf("Expected zeroed stats without error, got %q", result.Err)
	}
	if result.Data.TotalNodes != 0 || result.Data.ActiveAlerts != 0 {
		t.Errorf("Expected zero counters, got %+v", result.Data)
	}
}

func TestStore_UnreachableBackendKeepsUsableResult(t *testing.T) {
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		return nil, &gateway.Error{Kind: gateway.KindUnreachable, Err: errors.New("dial refused")}
	})
	cache := querycache.New(time.Minute)
	t.Cleanup(cache.Close)
	stale := DefaultStaleTimes()
	store := NewStore(cache, backend, stale, nil)
	t.Cleanup(store.Close)

	store.Communities()
	waitFor(t, "communities to settle", func() bool {
		r := store.Communities()
		return r.Err != ""
	})

	result := store.Communities()
	if result.Err != "temporarily unavailable" {
		t.Errorf("Expected normalized unavailable message, got %q", result.Err)
	}
	if result.Data == nil {
		t.Error("Expected usable empty collection alongside the error")
	}
}

func TestStore_WaitNodes(t *testing.T) {
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		return []byte(`[{"id":"n1"},{"id":"n2"}]`), nil
	})
	store := newTestStore(t, backend)

	nodes, err := store.WaitNodes(context.Background(), "")
	if err != nil {
		t.Fatalf("WaitNodes failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("Expected 2 nodes, got %d", len(nodes))
	}
}

func TestStore_MutationInvalidatesAffectedFamilies(t *testing.T) {
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		if method == "POST" {
			return []byte(`{"id":"n9","name":"New Tank"}`), nil
		}
		return []byte(`[]`), nil
	})
	store := newTestStore(t, backend)

	if _, err := store.WaitNodes(context.Background(), ""); err != nil {
		t.Fatalf("Seed read failed: %v", err)
	}
	if got := backend.count("GET", "/nodes"); got != 1 {
		t.Fatalf("Expected 1 seed fetch, got %d", got)
	}

	created, err := store.CreateNode(context.Background(), nodeForTest("New Tank"))
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if created.ID != "n9" {
		t.Errorf("Expected created record decoded, got %+v", created)
	}

	// The node collection was invalidated: the next read refetches.
	if _, err := store.WaitNodes(context.Background(), ""); err != nil {
		t.Fatalf("Post-mutation read failed: %v", err)
	}
	if got := backend.count("GET", "/nodes"); got != 2 {
		t.Errorf("Expected refetch after mutation, got %d fetches", got)
	}
}

func TestStore_AcknowledgeAlertInvalidatesAlerts(t *testing.T) {
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		if method == "POST" {
			return []byte(`{}`), nil
		}
		return []byte(`[]`), nil
	})
	store := newTestStore(t, backend)

	store.ActiveAlerts()
	waitFor(t, "alerts to settle", func() bool {
		return backend.count("GET", "/alerts/active") == 1
	})

	if err := store.AcknowledgeAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("AcknowledgeAlert failed: %v", err)
	}
	if got := backend.count("POST", "/alerts/a1/ack"); got != 1 {
		t.Errorf("Expected ack posted, got %d", got)
	}

	store.ActiveAlerts()
	waitFor(t, "alerts to refetch", func() bool {
		return backend.count("GET", "/alerts/active") == 2
	})
}

func TestStore_CloseCancelsOutstandingWork(t *testing.T) {
	release := make(chan struct{})
	backend := newFakeBackend(func(method, path string) ([]byte, error) {
		<-release
		return []byte(`[]`), nil
	})
	cache := querycache.New(time.Minute)
	t.Cleanup(cache.Close)
	store := NewStore(cache, backend, DefaultStaleTimes(), nil)

	store.Nodes("")
	store.Close()
	store.Close() // exactly-once teardown tolerates repeats
	close(release)

	if store.PushDegraded(EntityNodes) {
		t.Error("Expected no degradation report in polling-only mode")
	}
}

func TestNormalizeErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"cancellation swallowed", context.Canceled, ""},
		{"unauthorized", &gateway.Error{Kind: gateway.KindUnauthorized, Status: 401}, "please sign in"},
		{"unreachable", &gateway.Error{Kind: gateway.KindUnreachable}, "temporarily unavailable"},
		{"server error", &gateway.Error{Kind: gateway.KindServerError, Status: 500}, "temporarily unavailable"},
		{"client error", &gateway.Error{Kind: gateway.KindClientError, Status: 422}, "request failed"},
		{"plain error", errors.New("boom"), "request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeErr(tt.err); got != tt.want {
				t.Errorf("normalizeErr(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

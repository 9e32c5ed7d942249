package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestStore(t *testing.T) (Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.Clock = clock
	s, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, clock
}

func TestNamespace_GetWithinTTL(t *testing.T) {
	s, clock := newTestStore(t)
	ns, err := s.Namespace("bookings", time.Minute)
	if err != nil {
		t.Fatalf("Namespace: %v", err)
	}

	entry := ns.Put("bookings::k", "page-1")
	if !entry.StoredAt.Equal(clock.Now()) {
		t.Errorf("expected StoredAt to be now, got %v", entry.StoredAt)
	}

	clock.Advance(59 * time.Second)
	got, ok := ns.Get("bookings::k")
	if !ok {
		t.Fatal("expected hit within TTL")
	}
	if got.Value != "page-1" {
		t.Errorf("unexpected value %v", got.Value)
	}
}

func TestNamespace_ExpiresAtTTLBoundary(t *testing.T) {
	s, clock := newTestStore(t)
	ns, _ := s.Namespace("bookings", time.Minute)

	ns.Put("bookings::k", "page-1")
	clock.Advance(time.Minute)

	if _, ok := ns.Get("bookings::k"); ok {
		t.Error("expected miss when age equals TTL")
	}
	if _, ok := s.Get("bookings::k"); ok {
		t.Error("expected expired entry to be dropped from the store")
	}
}

func TestNamespace_Evict(t *testing.T) {
	s, _ := newTestStore(t)
	ns, _ := s.Namespace("parts", 5*time.Minute)

	ns.Put("parts::k", 1)
	ns.Evict("parts::k")

	if _, ok := ns.Get("parts::k"); ok {
		t.Error("expected miss after evict")
	}
}

func TestNamespace_RestoreKeepsTimestamp(t *testing.T) {
	s, clock := newTestStore(t)
	ns, _ := s.Namespace("services", 5*time.Minute)

	ns.Restore("services::k", "opts", clock.Now().Add(-4*time.Minute))
	if _, ok := ns.Get("services::k"); !ok {
		t.Fatal("expected restored entry within TTL to hit")
	}

	clock.Advance(time.Minute)
	if _, ok := ns.Get("services::k"); ok {
		t.Error("expected restored entry to expire on its original schedule")
	}
}

func TestNamespace_EvictAllAndExcept(t *testing.T) {
	s, _ := newTestStore(t)
	bookings, _ := s.Namespace("bookings", time.Minute)
	invoices, _ := s.Namespace("invoices", time.Minute)

	bookings.Put("bookings::a", 1)
	bookings.Put("bookings::b", 2)
	bookings.Put("bookings::c", 3)
	invoices.Put("invoices::a", 4)

	if keys := bookings.Keys(); len(keys) != 3 {
		t.Errorf("expected 3 bookings keys, got %v", keys)
	}

	if removed := bookings.EvictExcept("bookings::b"); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if _, ok := bookings.Get("bookings::b"); !ok {
		t.Error("expected kept key to survive")
	}

	if removed := bookings.EvictAll(); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := invoices.Get("invoices::a"); !ok {
		t.Error("expected other namespaces to be untouched")
	}
}

func TestStore_NamespaceValidation(t *testing.T) {
	s, _ := newTestStore(t)

	tests := []struct {
		name string
		ns   string
		ttl  time.Duration
	}{
		{"empty name", " ", time.Minute},
		{"zero ttl", "bookings", 0},
		{"ttl above max", "bookings", time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Namespace(tt.ns, tt.ttl); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGetAs(t *testing.T) {
	s, _ := newTestStore(t)
	ns, _ := s.Namespace("users", time.Minute)

	ns.Put("users::k", []string{"ana", "ben"})

	entry, ok, err := GetAs[[]string](ns, "users::k")
	if err != nil || !ok {
		t.Fatalf("expected typed hit, got ok=%v err=%v", ok, err)
	}
	if len(entry.Value) != 2 {
		t.Errorf("unexpected value %v", entry.Value)
	}

	_, ok, err = GetAs[int](ns, "users::k")
	if !errors.Is(err, ErrInvalidResultType) || ok {
		t.Errorf("expected ErrInvalidResultType, got ok=%v err=%v", ok, err)
	}

	_, ok, err = GetAs[int](ns, "users::missing")
	if ok || err != nil {
		t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestNewStore_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumShards = 0
	if _, err := NewStore(cfg); err == nil {
		t.Error("expected error for invalid config")
	}
}

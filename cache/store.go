package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/goliatone/go-garage-sync/internal/cacheinfra"
)

// ErrInvalidResultType is returned by GetAs when a stored value does not have the requested type.
var ErrInvalidResultType = errors.New("cache: stored value has unexpected type")

// KeySerializer builds a cache key from a namespace + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(namespace string, args ...any) string
}

// Entry is a stored value together with the time it was written.
type Entry[T any] struct {
	Key      string
	Value    T
	StoredAt time.Time
}

// Store is a process-lifetime key to entry map shared by every coordinator.
// Expiry is decided lazily on read by the Namespace that owns the key.
type Store interface {
	Get(key string) (Entry[any], bool)
	Put(key string, value any) Entry[any]
	Restore(key string, value any, storedAt time.Time) Entry[any]
	Evict(key string)
	EvictPrefix(prefix string) int
	Keys() []string
	Clock() clockwork.Clock
	Namespace(name string, ttl time.Duration) (*Namespace, error)
}

type store struct {
	backend *cacheinfra.SturdycBackend
}

func (s *store) Get(key string) (Entry[any], bool) {
	rec, ok := s.backend.Get(key)
	if !ok {
		return Entry[any]{}, false
	}
	return Entry[any]{Key: key, Value: rec.Value, StoredAt: rec.StoredAt}, true
}

func (s *store) Put(key string, value any) Entry[any] {
	return s.Restore(key, value, s.backend.Clock().Now())
}

func (s *store) Restore(key string, value any, storedAt time.Time) Entry[any] {
	s.backend.Set(key, cacheinfra.Record{Value: value, StoredAt: storedAt})
	return Entry[any]{Key: key, Value: value, StoredAt: storedAt}
}

func (s *store) Evict(key string) {
	s.backend.Delete(key)
}

func (s *store) EvictPrefix(prefix string) int {
	return s.backend.DeleteByPrefix(prefix)
}

func (s *store) Keys() []string {
	return s.backend.ScanKeys()
}

func (s *store) Clock() clockwork.Clock {
	return s.backend.Clock()
}

// Namespace returns a view over the store whose entries expire after ttl.
// ttl may not exceed the store's MaxTTL.
func (s *store) Namespace(name string, ttl time.Duration) (*Namespace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &cacheinfra.ConfigError{Field: "Namespace", Message: "must not be empty"}
	}
	if ttl <= 0 {
		return nil, &cacheinfra.ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if max := s.backend.MaxTTL(); ttl > max {
		return nil, &cacheinfra.ConfigError{Field: "TTL", Message: fmt.Sprintf("must not exceed store MaxTTL %s", max)}
	}
	return &Namespace{name: name, ttl: ttl, store: s}, nil
}

// Namespace scopes keys of one resource and applies its TTL on read.
type Namespace struct {
	name  string
	ttl   time.Duration
	store Store
}

// Name returns the namespace name, used as the key prefix.
func (n *Namespace) Name() string { return n.name }

// TTL returns the time-to-live applied to entries of this namespace.
func (n *Namespace) TTL() time.Duration { return n.ttl }

// Clock returns the clock entries are timestamped with.
func (n *Namespace) Clock() clockwork.Clock { return n.store.Clock() }

// Get returns the entry for key, or a miss when now - storedAt >= ttl.
func (n *Namespace) Get(key string) (Entry[any], bool) {
	entry, ok := n.store.Get(key)
	if !ok {
		return Entry[any]{}, false
	}
	if n.Expired(entry.StoredAt) {
		n.store.Evict(key)
		return Entry[any]{}, false
	}
	return entry, true
}

// Expired reports whether an entry stored at storedAt is past the TTL.
func (n *Namespace) Expired(storedAt time.Time) bool {
	return n.store.Clock().Since(storedAt) >= n.ttl
}

// Put overwrites key unconditionally and stamps it with the current time.
func (n *Namespace) Put(key string, value any) Entry[any] {
	return n.store.Put(key, value)
}

// Restore writes an entry that keeps its original timestamp, so a mirrored
// value does not outlive its TTL.
func (n *Namespace) Restore(key string, value any, storedAt time.Time) Entry[any] {
	return n.store.Restore(key, value, storedAt)
}

// Evict guarantees the next Get of key is a miss.
func (n *Namespace) Evict(key string) {
	n.store.Evict(key)
}

// EvictAll drops every entry of the namespace and returns how many were removed.
func (n *Namespace) EvictAll() int {
	return n.store.EvictPrefix(NamespacePrefix(n.name))
}

// Keys lists the stored keys of the namespace, expired ones included.
func (n *Namespace) Keys() []string {
	prefix := NamespacePrefix(n.name)
	var keys []string
	for _, key := range n.store.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// EvictExcept drops every entry of the namespace other than keep.
func (n *Namespace) EvictExcept(keep string) int {
	removed := 0
	for _, key := range n.Keys() {
		if key == keep {
			continue
		}
		n.store.Evict(key)
		removed++
	}
	return removed
}

// GetAs is a type-safe wrapper around Namespace.Get.
func GetAs[T any](n *Namespace, key string) (Entry[T], bool, error) {
	raw, ok := n.Get(key)
	if !ok {
		return Entry[T]{}, false, nil
	}
	value, ok := raw.Value.(T)
	if !ok {
		return Entry[T]{}, false, ErrInvalidResultType
	}
	return Entry[T]{Key: raw.Key, Value: value, StoredAt: raw.StoredAt}, true, nil
}

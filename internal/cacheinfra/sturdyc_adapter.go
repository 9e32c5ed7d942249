package cacheinfra

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jonboulle/clockwork"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backend.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Cardinality is bounded by the filter combinations a user exercises, so
	// this is a safety ceiling rather than a working-set size.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 64
	NumShards int

	// MaxTTL is the backend time-to-live. Namespaces apply their own, shorter
	// TTL on read; MaxTTL bounds how long any entry can physically live.
	MaxTTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// Clock is used to stamp and age entries. Nil means the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           5000,
		NumShards:          64,
		MaxTTL:             10 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
// Returns a *ConfigError naming the first invalid field.
func (c Config) Validate() error {
	rules := []struct {
		field string
		value any
		rules []validation.Rule
	}{
		{"Capacity", c.Capacity, []validation.Rule{validation.Required.Error("must be greater than 0"), validation.Min(1).Error("must be greater than 0")}},
		{"NumShards", c.NumShards, []validation.Rule{validation.Required.Error("must be greater than 0"), validation.Min(1).Error("must be greater than 0")}},
		{"MaxTTL", c.MaxTTL, []validation.Rule{validation.Required.Error("must be greater than 0"), validation.Min(time.Duration(1)).Error("must be greater than 0")}},
		{"EvictionPercentage", c.EvictionPercentage, []validation.Rule{validation.Required.Error("must be between 1 and 100"), validation.Min(1).Error("must be between 1 and 100"), validation.Max(100).Error("must be between 1 and 100")}},
	}

	for _, r := range rules {
		if err := validation.Validate(r.value, r.rules...); err != nil {
			return &ConfigError{Field: r.field, Message: err.Error()}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Record is what the backend physically stores for a key.
type Record struct {
	Value    any
	StoredAt time.Time
}

// SturdycBackend wraps a sturdyc client. It performs no TTL decisions of
// its own beyond MaxTTL; namespaces age records against their own TTL.
type SturdycBackend struct {
	client *sturdyc.Client[Record]
	clock  clockwork.Clock
	maxTTL time.Duration
}

// NewSturdycBackend creates a new sturdyc backend.
// Continuous evictions are disabled: expiry is lazy, decided on read.
func NewSturdycBackend(cfg Config) (*SturdycBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	client := sturdyc.New[Record](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		sturdyc.WithNoContinuousEvictions(),
		sturdyc.WithClock(sturdycClock{Clock: clock}),
	)

	return &SturdycBackend{client: client, clock: clock, maxTTL: cfg.MaxTTL}, nil
}

// Get returns the record stored under key.
func (b *SturdycBackend) Get(key string) (Record, bool) {
	return b.client.Get(key)
}

// Set overwrites the record stored under key.
func (b *SturdycBackend) Set(key string, rec Record) {
	b.client.Set(key, rec)
}

// Delete removes a single entry from the cache.
func (b *SturdycBackend) Delete(key string) {
	b.client.Delete(key)
}

// DeleteByPrefix removes all entries whose key starts with prefix and
// returns how many were removed.
func (b *SturdycBackend) DeleteByPrefix(prefix string) int {
	removed := 0
	for _, key := range b.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			b.client.Delete(key)
			removed++
		}
	}
	return removed
}

// ScanKeys lists every key currently held.
func (b *SturdycBackend) ScanKeys() []string {
	return b.client.ScanKeys()
}

// Size returns the number of entries currently held.
func (b *SturdycBackend) Size() int {
	return b.client.Size()
}

// Clock returns the clock records are stamped with.
func (b *SturdycBackend) Clock() clockwork.Clock {
	return b.clock
}

// MaxTTL returns the backend time-to-live.
func (b *SturdycBackend) MaxTTL() time.Duration {
	return b.maxTTL
}

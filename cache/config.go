package cache

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/goliatone/go-garage-sync/internal/cacheinfra"
)

// Config exposes store configuration options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	MaxTTL             time.Duration
	EvictionPercentage int
	// Clock stamps and ages entries; nil uses the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewStore constructs the default store implementation using the provided configuration.
func NewStore(cfg Config) (Store, error) {
	backend, err := cacheinfra.NewSturdycBackend(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &store{backend: backend}, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		MaxTTL:             c.MaxTTL,
		EvictionPercentage: c.EvictionPercentage,
		Clock:              c.Clock,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		MaxTTL:             cfg.MaxTTL,
		EvictionPercentage: cfg.EvictionPercentage,
		Clock:              cfg.Clock,
	}
}

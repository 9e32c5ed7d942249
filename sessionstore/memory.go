package sessionstore

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process session store. Expired entries are dropped on read.
type Memory struct {
	entries *xsync.MapOf[string, memoryEntry]
	clock   clockwork.Clock
}

// NewMemory returns an empty store. A nil clock uses the real clock.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		entries: xsync.NewMapOf[string, memoryEntry](),
		clock:   clock,
	}
}

// Load returns the data saved under key while it is within its ttl.
func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := m.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	if !m.clock.Now().Before(entry.expiresAt) {
		m.entries.Delete(key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.data...), true, nil
}

// Save stores a copy of data under key for ttl. A non-positive ttl deletes key.
func (m *Memory) Save(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		m.entries.Delete(key)
		return nil
	}
	m.entries.Store(key, memoryEntry{
		data:      append([]byte(nil), data...),
		expiresAt: m.clock.Now().Add(ttl),
	})
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	return m.entries.Size()
}

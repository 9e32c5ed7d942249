package sessionstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// DefaultKeyPrefix namespaces mirrored lists inside a shared Valkey database.
const DefaultKeyPrefix = "garagesync:session"

// Valkey mirrors lists into Valkey with native key expiry.
type Valkey struct {
	client  valkeylib.Client
	prefix  string
	session string
}

// NewValkey returns a store scoped to one session id. Keys are laid out as
// <prefix>:<session>:<list key>.
func NewValkey(client valkeylib.Client, prefix, session string) *Valkey {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Valkey{client: client, prefix: prefix, session: session}
}

func (s *Valkey) fullKey(key string) string {
	return s.prefix + ":" + s.session + ":" + key
}

// Load implements listsync.SessionStore.
func (s *Valkey) Load(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := s.client.B().Get().Key(s.fullKey(key)).Build()

	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load mirrored list: %w", err)
	}
	return data, true, nil
}

// Save implements listsync.SessionStore. Valkey expiry has millisecond
// resolution, so ttl is rounded up to at least one millisecond.
func (s *Valkey) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	cmd := s.client.B().Set().
		Key(s.fullKey(key)).
		Value(valkeylib.BinaryString(data)).
		PxMilliseconds(ttl.Milliseconds()).
		Build()

	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save mirrored list: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Valkey) Delete(ctx context.Context, key string) error {
	cmd := s.client.B().Del().Key(s.fullKey(key)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete mirrored list: %w", err)
	}
	return nil
}

package listsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type mirroredSnapshot struct {
	StoredAt time.Time `json:"storedAt"`
	Snapshot Snapshot  `json:"snapshot"`
}

// EncodeSnapshot serializes a snapshot for the session mirror.
func EncodeSnapshot(snap Snapshot, storedAt time.Time) ([]byte, error) {
	return json.Marshal(mirroredSnapshot{StoredAt: storedAt.UTC(), Snapshot: snap})
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) (Snapshot, time.Time, error) {
	var m mirroredSnapshot
	if err := json.Unmarshal(data, &m); err != nil {
		return Snapshot{}, time.Time{}, fmt.Errorf("listsync: decode mirrored snapshot: %w", err)
	}
	if m.StoredAt.IsZero() {
		return Snapshot{}, time.Time{}, fmt.Errorf("listsync: mirrored snapshot has no timestamp")
	}
	return m.Snapshot, m.StoredAt, nil
}

func (c *Coordinator) mirrorEnabled() bool {
	return c.cfg.MirrorSession && c.session != nil
}

// restore reads key from the session mirror. A mirrored page is only used
// within the TTL of its original fetch and is put back into the in-memory
// store with that original timestamp.
func (c *Coordinator) restore(ctx context.Context, key string) (Snapshot, bool) {
	if !c.mirrorEnabled() {
		return Snapshot{}, false
	}

	data, ok, err := c.session.Load(ctx, key)
	if err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("session mirror load failed")
		return Snapshot{}, false
	}
	if !ok {
		return Snapshot{}, false
	}

	snap, storedAt, err := DecodeSnapshot(data)
	if err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("discarding unreadable session mirror entry")
		return Snapshot{}, false
	}
	if c.ns.Expired(storedAt) {
		return Snapshot{}, false
	}

	c.ns.Restore(key, snap, storedAt)
	c.track(key)
	c.hooks.SessionRestored(c.cfg.Name)
	return snap, true
}

func (c *Coordinator) mirror(ctx context.Context, key string, snap Snapshot, storedAt time.Time) {
	if !c.mirrorEnabled() {
		return
	}

	data, err := EncodeSnapshot(snap, storedAt)
	if err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("session mirror encode failed")
		return
	}

	ttl := c.cfg.TTL - c.clock.Since(storedAt)
	if ttl <= 0 {
		return
	}
	if err := c.session.Save(ctx, key, data, ttl); err != nil {
		c.logger.WithFields(logrus.Fields{"key": key}).WithError(err).Warn("session mirror save failed")
		return
	}
	c.track(key)
}

func (c *Coordinator) track(key string) {
	c.mu.Lock()
	c.mirrored[key] = struct{}{}
	c.mu.Unlock()
}

// forgetSiblings removes every mirrored page of the resource other than keep
// that this coordinator has written, restored or still holds in memory.
func (c *Coordinator) forgetSiblings(ctx context.Context, keep string) {
	if !c.mirrorEnabled() {
		return
	}

	siblings := make(map[string]struct{})
	for _, key := range c.ns.Keys() {
		siblings[key] = struct{}{}
	}
	c.mu.Lock()
	for key := range c.mirrored {
		siblings[key] = struct{}{}
	}
	c.mu.Unlock()
	delete(siblings, keep)

	for key := range siblings {
		if err := c.session.Delete(ctx, key); err != nil {
			c.logger.WithField("key", key).WithError(err).Warn("session mirror delete failed")
			continue
		}
		c.mu.Lock()
		delete(c.mirrored, key)
		c.mu.Unlock()
	}
}

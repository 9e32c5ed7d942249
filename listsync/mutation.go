package listsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// MutationKind identifies how a confirmed item is folded into a list.
type MutationKind int

const (
	MutationCreate MutationKind = iota
	MutationUpdate
	MutationStatus
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationStatus:
		return "status"
	default:
		return fmt.Sprintf("mutation(%d)", int(k))
	}
}

// ApplyCreate prepends item, dropping any stale copy with the same id, and
// renumbers display sequence numbers from the first row's number.
func ApplyCreate(items []Item, item Item) []Item {
	start := firstSeq(items)
	out := make([]Item, 0, len(items)+1)
	out = append(out, item)
	for _, it := range items {
		if it.ID != item.ID {
			out = append(out, it)
		}
	}
	return resequence(out, start)
}

// ApplyUpdate replaces the item with the same id in place, keeping its
// position and sequence number. An unknown id leaves the content unchanged.
// The returned slice is always a fresh copy.
func ApplyUpdate(items []Item, item Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ID == item.ID {
			item.Seq = out[i].Seq
			out[i] = item
			break
		}
	}
	return out
}

// ApplyTransition is ApplyUpdate followed by removal of the item when keep
// reports it no longer belongs in the list. keep may be nil.
func ApplyTransition(items []Item, item Item, keep func(Item) bool) []Item {
	out := ApplyUpdate(items, item)
	if keep == nil || keep(item) {
		return out
	}

	start := firstSeq(out)
	filtered := out[:0]
	removed := false
	for _, it := range out {
		if it.ID == item.ID {
			removed = true
			continue
		}
		filtered = append(filtered, it)
	}
	if !removed {
		return filtered
	}
	return resequence(filtered, start)
}

func firstSeq(items []Item) int {
	if len(items) == 0 || items[0].Seq < 1 {
		return 1
	}
	return items[0].Seq
}

func resequence(items []Item, start int) []Item {
	for i := range items {
		items[i].Seq = start + i
	}
	return items
}

// Create asks the mutator to create payload and prepends the confirmed item.
func (c *Coordinator) Create(ctx context.Context, payload any) (Item, error) {
	return c.mutate(ctx, MutationCreate, "", func(m Mutator) (MutationResponse, error) {
		return m.Create(ctx, payload)
	})
}

// Update asks the mutator to patch id and replaces the item in place.
func (c *Coordinator) Update(ctx context.Context, id string, patch any) (Item, error) {
	return c.mutate(ctx, MutationUpdate, id, func(m Mutator) (MutationResponse, error) {
		return m.Update(ctx, id, patch)
	})
}

// SetStatus asks the mutator to move id to status. For resources with
// DropIneligible the item leaves a list whose status filter it no longer matches.
func (c *Coordinator) SetStatus(ctx context.Context, id, status string) (Item, error) {
	return c.mutate(ctx, MutationStatus, id, func(m Mutator) (MutationResponse, error) {
		return m.SetStatus(ctx, id, status)
	})
}

// ApplyRemote folds an item confirmed elsewhere (another call site, a push
// payload) into the list without calling the mutator.
func (c *Coordinator) ApplyRemote(kind MutationKind, raw json.RawMessage) (Item, error) {
	item, err := c.cfg.Normalizer.NormalizeOne(raw)
	if err != nil {
		return Item{}, err
	}
	if !c.apply(context.Background(), kind, item) {
		return Item{}, ErrClosed
	}
	return item, nil
}

func (c *Coordinator) mutate(ctx context.Context, kind MutationKind, id string, call func(Mutator) (MutationResponse, error)) (Item, error) {
	if c.mutator == nil {
		return Item{}, ErrNoMutator
	}
	if c.isClosed() {
		return Item{}, ErrClosed
	}

	logger := c.logger.WithFields(logrus.Fields{"mutation": kind.String(), "id": id})

	resp, err := c.callMutator(call)
	if err != nil {
		logger.WithError(err).Warn("mutation failed")
		return Item{}, err
	}

	item, err := c.cfg.Normalizer.NormalizeOne(resp.Item)
	if err != nil {
		logger.WithError(err).Warn("mutation returned an unreadable item")
		return Item{}, transportError(err)
	}
	c.apply(ctx, kind, item)
	return item, nil
}

func (c *Coordinator) callMutator(call func(Mutator) (MutationResponse, error)) (resp MutationResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("mutator panicked")
			err = panicError(r)
		}
	}()

	resp, err = call(c.mutator)
	if err != nil {
		return MutationResponse{}, transportError(err)
	}
	if !resp.OK {
		return MutationResponse{}, businessError(resp.Error)
	}
	return resp, nil
}

// apply folds item into the published list, writes the page through under
// the current key keeping its original timestamp, and evicts the other
// cached pages of the resource from memory and the session mirror.
// PageMeta is left as the server reported it.
func (c *Coordinator) apply(ctx context.Context, kind MutationKind, item Item) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}

	switch kind {
	case MutationCreate:
		c.state.Items = ApplyCreate(c.state.Items, item)
	case MutationStatus:
		filter := c.state.Query.Status
		c.state.Items = ApplyTransition(c.state.Items, item, func(it Item) bool {
			return c.cfg.eligible(it, filter)
		})
	default:
		c.state.Items = ApplyUpdate(c.state.Items, item)
	}

	key := c.state.Key
	snap := Snapshot{Items: c.state.Items, Page: c.state.Page}
	published, watchers := c.publishLocked()
	c.mu.Unlock()

	notify(watchers, published)

	if key == "" {
		return true
	}
	if entry, ok := c.ns.Get(key); ok {
		c.ns.Restore(key, snap, entry.StoredAt)
		c.mirror(ctx, key, snap, entry.StoredAt)
	}
	c.forgetSiblings(ctx, key)
	if evicted := c.ns.EvictExcept(key); evicted > 0 {
		c.logger.WithField("evicted", evicted).Debug("evicted sibling pages after mutation")
	}
	return true
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

package listsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-garage-sync/cache"
)

// State is the published view of a coordinator.
type State struct {
	Query     cache.QueryState
	Key       string
	Items     []Item
	Page      PageMeta
	Loading   bool
	Err       string
	UpdatedAt time.Time
}

// FetchOption tweaks a single Fetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	force bool
}

// Force bypasses the cache and evicts the entry for the query first.
func Force() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// Coordinator owns check-cache, call-remote, normalize, store and publish
// for one list resource. Only the most recently initiated fetch may commit.
type Coordinator struct {
	cfg     ResourceConfig
	ns      *cache.Namespace
	builder *cache.FingerprintBuilder
	lister  Lister
	mutator Mutator
	session SessionStore
	hooks   Hooks
	logger  logrus.FieldLogger
	clock   clockwork.Clock

	mu          sync.Mutex
	state       State
	epoch       uint64
	closed      bool
	running     bool
	watchers    map[uint64]func(State)
	nextWatcher uint64
	onClose     []func()
	mirrored    map[string]struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

// New validates cfg and deps and returns an idle coordinator. Nothing is
// fetched until Fetch, Refresh or Start is called.
func New(cfg ResourceConfig, deps Deps) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	ns, err := deps.Store.Namespace(cfg.Name, cfg.TTL)
	if err != nil {
		return nil, err
	}

	builder := deps.Builder
	if builder == nil {
		builder = cache.NewFingerprintBuilder(nil)
	}
	hooks := deps.Hooks
	if hooks == nil {
		hooks = nopHooks{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	initial := cfg.InitialQuery.Normalize(cfg.Defaults)

	return &Coordinator{
		cfg:      cfg,
		ns:       ns,
		builder:  builder,
		lister:   deps.Lister,
		mutator:  deps.Mutator,
		session:  deps.Session,
		hooks:    hooks,
		logger:   logger.WithField("resource", cfg.Name),
		clock:    ns.Clock(),
		state:    State{Query: initial},
		watchers: make(map[uint64]func(State)),
		mirrored: make(map[string]struct{}),
		stop:     make(chan struct{}),
	}, nil
}

// Name returns the resource name.
func (c *Coordinator) Name() string { return c.cfg.Name }

// Config returns the resource configuration.
func (c *Coordinator) Config() ResourceConfig { return c.cfg }

// State returns a copy of the published state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyState()
}

func (c *Coordinator) copyState() State {
	s := c.state
	s.Items = append([]Item(nil), c.state.Items...)
	return s
}

// Watch registers fn to be called with the new state after every change.
// The returned function deregisters it.
func (c *Coordinator) Watch(fn func(State)) (stop func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.nextWatcher++
	id := c.nextWatcher
	c.watchers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// OnClose registers fn to run when the coordinator is closed, e.g. a
// realtime subscription that must not outlive it.
func (c *Coordinator) OnClose(fn func()) {
	c.mu.Lock()
	if !c.closed {
		c.onClose = append(c.onClose, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// Fetch satisfies q from the cache or the remote lister and publishes the
// result. Without Force a fresh cache entry is published immediately with
// no remote call and no loading transition. On failure the error is
// published, previously published items stay visible and the error is
// returned. A fetch overtaken by a newer one returns ErrSuperseded and
// publishes nothing; one that completes after Close returns ErrClosed.
func (c *Coordinator) Fetch(ctx context.Context, q cache.QueryState, opts ...FetchOption) (Snapshot, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	q = q.Normalize(c.cfg.Defaults)
	key := c.builder.Build(c.cfg.Name, q, c.cfg.Defaults).String()

	if o.force {
		c.ns.Evict(key)
	} else if snap, ok := c.lookup(ctx, key); ok {
		c.hooks.CacheHit(c.cfg.Name)
		token, ok := c.begin()
		if !ok {
			return Snapshot{}, ErrClosed
		}
		c.commit(token, func(s *State) {
			s.Query = q
			s.Key = key
			s.Items = snap.Items
			s.Page = snap.Page
			s.Loading = false
			s.Err = ""
		})
		return snap.clone(), nil
	} else {
		c.hooks.CacheMiss(c.cfg.Name)
	}

	token, ok := c.begin()
	if !ok {
		return Snapshot{}, ErrClosed
	}

	c.commit(token, func(s *State) {
		s.Query = q
		s.Key = key
		s.Loading = true
		s.Err = ""
	})

	started := c.clock.Now()
	resp, err := c.list(ctx, q)
	c.hooks.FetchCompleted(c.cfg.Name, c.clock.Since(started), err)

	if err != nil {
		committed := c.commit(token, func(s *State) {
			s.Loading = false
			s.Err = err.Error()
		})
		if !committed {
			if c.isClosed() {
				return Snapshot{}, ErrClosed
			}
			c.hooks.Superseded(c.cfg.Name)
			c.logger.WithField("key", key).WithError(err).Debug("discarding superseded fetch failure")
			return Snapshot{}, ErrSuperseded
		}
		c.logger.WithField("key", key).WithError(err).Warn("list fetch failed")
		return Snapshot{}, err
	}

	items, dropped := c.cfg.Normalizer.Normalize(resp.Items, q.Offset())
	if dropped > 0 {
		c.logger.WithFields(logrus.Fields{"key": key, "dropped": dropped}).Warn("dropped invalid or duplicate records")
	}
	snap := Snapshot{Items: items, Page: pageFrom(resp.Pagination)}

	now := c.clock.Now()
	committed := c.commit(token, func(s *State) {
		s.Items = snap.Items
		s.Page = snap.Page
		s.Loading = false
		s.Err = ""
		s.UpdatedAt = now
	})
	if !committed {
		if c.isClosed() {
			return snap.clone(), ErrClosed
		}
		c.hooks.Superseded(c.cfg.Name)
		c.logger.WithField("key", key).Debug("discarding superseded fetch result")
		return snap.clone(), ErrSuperseded
	}

	entry := c.ns.Put(key, snap)
	c.mirror(ctx, key, snap, entry.StoredAt)

	return snap.clone(), nil
}

// Refresh re-runs the current query bypassing the cache.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err := c.Fetch(ctx, c.currentQuery(), Force())
	return err
}

func (c *Coordinator) currentQuery() cache.QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Query
}

// Start runs an unforced fetch of the current query every TTL until ctx is
// done or the coordinator is closed. Calling Start twice is a no-op.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	ticker := c.clock.NewTicker(c.cfg.TTL)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.Chan():
				if _, err := c.Fetch(ctx, c.currentQuery()); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrClosed) {
					c.logger.WithError(err).Debug("periodic refetch failed")
				}
			}
		}
	}()
}

// Close stops the periodic refetch, runs OnClose callbacks and suppresses
// every later state update, including results of fetches still in flight.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.watchers = nil
	callbacks := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	close(c.stop)
	for _, fn := range callbacks {
		fn()
	}
	c.wg.Wait()
	return nil
}

// begin records a new initiation and returns its token.
func (c *Coordinator) begin() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.epoch++
	return c.epoch, true
}

// commit applies fn to the state only if token is still the latest
// initiation and the coordinator is alive, then notifies watchers.
func (c *Coordinator) commit(token uint64, fn func(*State)) bool {
	c.mu.Lock()
	if c.closed || token != c.epoch {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	snapshot, watchers := c.publishLocked()
	c.mu.Unlock()

	notify(watchers, snapshot)
	return true
}

func (c *Coordinator) publishLocked() (State, []func(State)) {
	watchers := make([]func(State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	return c.copyState(), watchers
}

func notify(watchers []func(State), s State) {
	for _, fn := range watchers {
		fn(s)
	}
}

// list calls the lister and folds every failure shape, including panics,
// into a *RemoteError.
func (c *Coordinator) list(ctx context.Context, q cache.QueryState) (resp ListResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("lister panicked")
			err = panicError(r)
		}
	}()

	resp, err = c.lister.List(ctx, q)
	if err != nil {
		return ListResponse{}, transportError(err)
	}
	if !resp.OK {
		return ListResponse{}, businessError(resp.Error)
	}
	return resp, nil
}

// lookup consults the in-memory namespace and then, for mirrored
// resources, the session store.
func (c *Coordinator) lookup(ctx context.Context, key string) (Snapshot, bool) {
	entry, ok, err := cache.GetAs[Snapshot](c.ns, key)
	if err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("unexpected cache entry")
		c.ns.Evict(key)
	}
	if ok {
		return entry.Value, true
	}
	return c.restore(ctx, key)
}

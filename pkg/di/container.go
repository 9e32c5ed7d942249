package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
	"github.com/goliatone/go-garage-sync/metrics"
	"github.com/goliatone/go-garage-sync/pkg/config"
	"github.com/goliatone/go-garage-sync/pkg/logging"
	"github.com/goliatone/go-garage-sync/realtime"
	"github.com/goliatone/go-garage-sync/realtime/valkeychannel"
	"github.com/goliatone/go-garage-sync/realtime/wschannel"
	"github.com/goliatone/go-garage-sync/remote"
	"github.com/goliatone/go-garage-sync/resources"
	"github.com/goliatone/go-garage-sync/sessionstore"
)

// ErrNoRemote is returned when a coordinator needs the REST client but no
// remote base URL is configured.
var ErrNoRemote = errors.New("di: remote base url is not configured")

// ErrUnknownResource is returned for a resource name with no definition.
var ErrUnknownResource = errors.New("di: unknown resource")

type transport interface {
	realtime.Channel
	Start(ctx context.Context)
	Close() error
}

// Container owns the components shared by every list coordinator: the cache
// store, the fingerprint builder, the session mirror, the realtime channel
// and listener, the REST client and the metrics registry.
type Container struct {
	cfg        config.Config
	logger     *logrus.Logger
	clock      clockwork.Clock
	store      cache.Store
	builder    *cache.FingerprintBuilder
	hooks      listsync.Hooks
	registry   *prometheus.Registry
	session    listsync.SessionStore
	valkey     valkeylib.Client
	ownsValkey bool
	bus        *realtime.Bus
	transport  transport
	listener   *realtime.Listener
	client     *remote.Client

	mu           sync.Mutex
	coordinators []*listsync.Coordinator
	closed       bool
}

// Option customizes a Container.
type Option func(*options)

type options struct {
	clock    clockwork.Clock
	logger   *logrus.Logger
	notifier realtime.Notifier
	valkey   valkeylib.Client
	doer     remote.Doer
}

// WithClock replaces the real clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger replaces the logger built from the logging section.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNotifier sets where realtime notifications go. Defaults to the logger.
func WithNotifier(n realtime.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithValkeyClient supplies an existing Valkey client instead of dialing one.
// The container does not close a supplied client.
func WithValkeyClient(c valkeylib.Client) Option {
	return func(o *options) { o.valkey = c }
}

// WithDoer replaces the HTTP transport of the REST client.
func WithDoer(d remote.Doer) Option {
	return func(o *options) { o.doer = d }
}

// NewContainer builds every shared component from cfg.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = logging.New(cfg.Logging.Logger()); err != nil {
			return nil, err
		}
	}
	clock := o.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	storeCfg := cfg.Cache.Store()
	storeCfg.Clock = clock
	store, err := cache.NewStore(storeCfg)
	if err != nil {
		return nil, err
	}

	c := &Container{
		cfg:     cfg,
		logger:  logger,
		clock:   clock,
		store:   store,
		builder: cache.NewFingerprintBuilder(nil),
		bus:     realtime.NewBus(logger),
	}

	if cfg.Metrics.Enabled {
		c.registry = prometheus.NewRegistry()
		c.hooks = metrics.New(c.registry)
	}

	c.valkey = o.valkey
	if c.valkey == nil && (cfg.Session.Backend == config.SessionValkey || cfg.Realtime.Transport == config.TransportValkey) {
		c.valkey, err = valkeylib.NewClient(valkeylib.ClientOption{
			InitAddress: cfg.Valkey.Addresses,
			Username:    cfg.Valkey.Username,
			Password:    cfg.Valkey.Password,
			SelectDB:    cfg.Valkey.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("di: connect valkey: %w", err)
		}
		c.ownsValkey = true
	}

	c.session, err = c.newSession()
	if err != nil {
		c.closeValkey()
		return nil, err
	}

	if cfg.Remote.BaseURL != "" {
		clientOpts := []remote.Option{remote.WithLogger(logger), remote.WithTokenSource(c.token)}
		if o.doer != nil {
			clientOpts = append(clientOpts, remote.WithDoer(o.doer))
		}
		if c.client, err = remote.NewClient(cfg.Remote.Client(), clientOpts...); err != nil {
			c.closeValkey()
			return nil, err
		}
	}

	if c.transport, err = c.newTransport(); err != nil {
		c.closeValkey()
		return nil, err
	}

	var channel realtime.Channel = c.bus
	if c.transport != nil {
		channel = c.transport
	}
	notifier := o.notifier
	if notifier == nil {
		notifier = realtime.LogNotifier{Logger: logger}
	}
	c.listener = realtime.NewListener(channel, notifier, realtime.Options{
		LocalActor:     cfg.Realtime.Actor,
		RefreshTimeout: cfg.Realtime.RefreshTimeout,
		Logger:         logger,
	})

	return c, nil
}

// NewContainerWithDefaults builds a container from config.Default().
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(config.Default(), opts...)
}

func (c *Container) newSession() (listsync.SessionStore, error) {
	switch c.cfg.Session.Backend {
	case config.SessionValkey:
		id := c.cfg.Session.ID
		if id == "" {
			id = uuid.NewString()
		}
		return sessionstore.NewValkey(c.valkey, c.cfg.Session.Prefix, id), nil
	case config.SessionMemory, "":
		return sessionstore.NewMemory(c.clock), nil
	default:
		return nil, fmt.Errorf("di: unknown session backend %q", c.cfg.Session.Backend)
	}
}

func (c *Container) newTransport() (transport, error) {
	rt := c.cfg.Realtime
	switch rt.Transport {
	case config.TransportValkey:
		return valkeychannel.New(c.valkey, valkeychannel.Options{
			Channel:        rt.Channel,
			ReconnectDelay: rt.ReconnectDelay,
			Logger:         c.logger,
			Clock:          c.clock,
		}), nil
	case config.TransportWebsocket:
		header := http.Header{}
		if c.cfg.Remote.Token != "" {
			header.Set("Authorization", "Bearer "+c.cfg.Remote.Token)
		}
		ch, err := wschannel.New(wschannel.Options{
			URL:            rt.URL,
			Header:         header,
			ReconnectDelay: rt.ReconnectDelay,
			Logger:         c.logger,
			Clock:          c.clock,
		})
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, nil
	}
}

func (c *Container) token(context.Context) (string, error) {
	return c.cfg.Remote.Token, nil
}

// closeValkey closes the Valkey client if the container dialed it.
func (c *Container) closeValkey() {
	if c.ownsValkey {
		c.valkey.Close()
	}
}

// Config returns the configuration the container was built with.
func (c *Container) Config() config.Config { return c.cfg }

// Logger returns the shared logger.
func (c *Container) Logger() *logrus.Logger { return c.logger }

// Store returns the shared cache store.
func (c *Container) Store() cache.Store { return c.store }

// Session returns the session mirror.
func (c *Container) Session() listsync.SessionStore { return c.session }

// Bus is the in-process event bus. Without a network transport it is the
// channel the listener watches, so local code can publish events on it.
func (c *Container) Bus() *realtime.Bus { return c.bus }

// Listener returns the realtime listener.
func (c *Container) Listener() *realtime.Listener { return c.listener }

// Remote returns the REST client, nil when no base URL is configured.
func (c *Container) Remote() *remote.Client { return c.client }

// Registry returns the metrics registry, nil when metrics are disabled.
func (c *Container) Registry() *prometheus.Registry { return c.registry }

// Deps returns coordinator dependencies using the shared components.
func (c *Container) Deps(lister listsync.Lister, mutator listsync.Mutator) listsync.Deps {
	return listsync.Deps{
		Store:   c.store,
		Builder: c.builder,
		Lister:  lister,
		Mutator: mutator,
		Session: c.session,
		Hooks:   c.hooks,
		Logger:  c.logger,
	}
}

// NewCoordinator builds the coordinator of a named resource backed by the
// REST client and attaches it to the realtime listener.
func (c *Container) NewCoordinator(name string) (*listsync.Coordinator, error) {
	def, ok := resources.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	if c.client == nil {
		return nil, ErrNoRemote
	}

	res := c.client.Resource(def.Path)
	var mutator listsync.Mutator
	if def.Mutable {
		mutator = res
	}
	return c.Attach(def.Config, res, mutator)
}

// Attach builds a coordinator for cfg over the given collaborators, subscribes
// it to its realtime events and tracks it so Close can shut it down.
func (c *Container) Attach(cfg listsync.ResourceConfig, lister listsync.Lister, mutator listsync.Mutator) (*listsync.Coordinator, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, listsync.ErrClosed
	}

	coord, err := listsync.New(cfg, c.Deps(lister, mutator))
	if err != nil {
		return nil, err
	}
	if err := c.listener.Attach(coord); err != nil {
		coord.Close()
		return nil, err
	}

	c.mu.Lock()
	c.coordinators = append(c.coordinators, coord)
	c.mu.Unlock()
	return coord, nil
}

// Start connects the realtime transport, if any. It returns immediately.
func (c *Container) Start(ctx context.Context) {
	if c.transport != nil {
		c.transport.Start(ctx)
	}
}

// Close shuts down every coordinator created by the container, the listener,
// the transport and an owned Valkey client.
func (c *Container) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	coords := c.coordinators
	c.coordinators = nil
	c.mu.Unlock()

	var errs []error
	for _, coord := range coords {
		errs = append(errs, coord.Close())
	}
	errs = append(errs, c.listener.Close())
	if c.transport != nil {
		errs = append(errs, c.transport.Close())
	}
	c.closeValkey()
	return errors.Join(errs...)
}

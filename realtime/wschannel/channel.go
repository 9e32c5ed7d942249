// Package wschannel receives realtime events from a websocket endpoint.
package wschannel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-garage-sync/realtime"
)

// DefaultReconnectDelay is the pause between connection attempts.
const DefaultReconnectDelay = 3 * time.Second

// Options configure a Channel.
type Options struct {
	URL            string
	Header         http.Header
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
	Logger         logrus.FieldLogger
	Clock          clockwork.Clock
}

// Channel keeps a websocket connection open and fans every text message,
// decoded as a realtime event, out to local subscribers.
type Channel struct {
	opts   Options
	bus    *realtime.Bus
	logger logrus.FieldLogger

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	connected chan struct{}
}

// New returns a channel for opts.URL. Start must be called to connect.
func New(opts Options) (*Channel, error) {
	if opts.URL == "" {
		return nil, errors.New("wschannel: url is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithFields(logrus.Fields{"transport": "websocket", "url": opts.URL})

	return &Channel{
		opts:      opts,
		bus:       realtime.NewBus(logger),
		logger:    logger,
		connected: make(chan struct{}, 1),
	}, nil
}

// Subscribe implements realtime.Channel.
func (c *Channel) Subscribe(event string, h realtime.Handler) (realtime.Token, error) {
	return c.bus.Subscribe(event, h)
}

// Unsubscribe implements realtime.Channel.
func (c *Channel) Unsubscribe(tok realtime.Token) error {
	return c.bus.Unsubscribe(tok)
}

// Connected signals every successful (re)connection.
func (c *Channel) Connected() <-chan struct{} {
	return c.connected
}

// Start connects in the background and reconnects after a drop until ctx is
// done or Close is called.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			if err := c.session(ctx); err != nil && ctx.Err() == nil {
				c.logger.WithError(err).Warn("websocket session ended, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-c.opts.Clock.After(c.opts.ReconnectDelay):
			}
		}
	}()
}

// session runs one connection until it fails or ctx is done.
func (c *Channel) session(ctx context.Context) error {
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	select {
	case c.connected <- struct{}{}:
	default:
	}
	c.logger.Debug("websocket connected")

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		e, err := realtime.DecodeEvent(data)
		if err != nil {
			c.logger.WithError(err).Debug("ignoring malformed event")
			continue
		}
		c.bus.Publish(e)
	}
}

// Close disconnects and stops reconnecting.
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	cancel()
	<-done
	return nil
}

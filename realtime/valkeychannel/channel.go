// Package valkeychannel carries realtime events over Valkey pub/sub.
package valkeychannel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/goliatone/go-garage-sync/realtime"
)

const (
	// DefaultChannel is the pub/sub channel events are published on.
	DefaultChannel = "garagesync:events"
	// DefaultReconnectDelay is the pause before resubscribing after a failure.
	DefaultReconnectDelay = 2 * time.Second
)

// Options configure a Channel.
type Options struct {
	Channel        string
	ReconnectDelay time.Duration
	Logger         logrus.FieldLogger
	Clock          clockwork.Clock
}

// Channel subscribes to a Valkey pub/sub channel and fans decoded events out
// to local subscribers through a realtime.Bus.
type Channel struct {
	client valkeylib.Client
	opts   Options
	bus    *realtime.Bus
	logger logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a channel over client. Start must be called to receive events.
func New(client valkeylib.Client, opts Options) *Channel {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
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
	logger = logger.WithFields(logrus.Fields{"transport": "valkey", "channel": opts.Channel})

	return &Channel{
		client: client,
		opts:   opts,
		bus:    realtime.NewBus(logger),
		logger: logger,
	}
}

// Subscribe implements realtime.Channel.
func (c *Channel) Subscribe(event string, h realtime.Handler) (realtime.Token, error) {
	return c.bus.Subscribe(event, h)
}

// Unsubscribe implements realtime.Channel.
func (c *Channel) Unsubscribe(tok realtime.Token) error {
	return c.bus.Unsubscribe(tok)
}

// Publish sends e to every client listening on the channel, this one included.
func (c *Channel) Publish(ctx context.Context, e realtime.Event) error {
	data, err := realtime.EncodeEvent(e)
	if err != nil {
		return err
	}
	cmd := c.client.B().Publish().Channel(c.opts.Channel).Message(string(data)).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Name, err)
	}
	return nil
}

// Start receives events until ctx is done or Close is called. A dropped
// subscription is retried after ReconnectDelay; events sent meanwhile are lost.
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
			err := c.client.Receive(ctx, c.client.B().Subscribe().Channel(c.opts.Channel).Build(), c.dispatch)
			if ctx.Err() != nil {
				return
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				c.logger.WithError(err).Warn("subscription dropped, retrying")
			}
			select {
			case <-ctx.Done():
				return
			case <-c.opts.Clock.After(c.opts.ReconnectDelay):
			}
		}
	}()
}

func (c *Channel) dispatch(msg valkeylib.PubSubMessage) {
	c.deliver([]byte(msg.Message))
}

func (c *Channel) deliver(data []byte) {
	e, err := realtime.DecodeEvent(data)
	if err != nil {
		c.logger.WithError(err).Debug("ignoring malformed event")
		return
	}
	c.bus.Publish(e)
}

// Close stops receiving. Subscriptions stay registered but see no events.
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

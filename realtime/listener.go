package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-garage-sync/listsync"
)

// DefaultRefreshTimeout bounds a refresh triggered by an event.
const DefaultRefreshTimeout = 30 * time.Second

// Refresher is what a listener drives on every event: a forced refetch.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// Options configure a Listener.
type Options struct {
	// LocalActor identifies this client. Events caused by it refresh lists
	// without a user notification.
	LocalActor string
	// RefreshTimeout bounds each refresh. Defaults to DefaultRefreshTimeout.
	RefreshTimeout time.Duration
	Logger         logrus.FieldLogger
}

// Listener turns channel events into notifications and forced refreshes.
// Refreshes triggered by different events run concurrently.
type Listener struct {
	ch       Channel
	notifier Notifier
	opts     Options
	logger   logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu     sync.Mutex
	tokens map[Token]struct{}
	closed bool
}

// NewListener returns a listener on ch. A nil notifier disables notifications.
func NewListener(ch Channel, notifier Notifier, opts Options) *Listener {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Level, string) {})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		ch:       ch,
		notifier: notifier,
		opts:     opts,
		logger:   logger.WithField("component", "realtime"),
		ctx:      ctx,
		cancel:   cancel,
		tokens:   make(map[Token]struct{}),
	}
}

// Watch subscribes target to events. The returned function unsubscribes
// them again and is safe to call more than once.
func (l *Listener) Watch(target Refresher, events ...string) (func(), error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, listsync.ErrClosed
	}
	l.mu.Unlock()

	var toks []Token
	for _, event := range events {
		tok, err := l.ch.Subscribe(event, func(e Event) { l.handle(target, e) })
		if err != nil {
			l.release(toks)
			return nil, err
		}
		toks = append(toks, tok)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.release(toks)
		return nil, listsync.ErrClosed
	}
	for _, tok := range toks {
		l.tokens[tok] = struct{}{}
	}
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"resource": target.Name(),
		"events":   events,
	}).Debug("watching realtime events")

	var once sync.Once
	return func() { once.Do(func() { l.release(toks) }) }, nil
}

// Attach watches the events a coordinator is configured to refresh on and
// ties the subscription to the coordinator's lifetime.
func (l *Listener) Attach(c *listsync.Coordinator) error {
	events := c.Config().RefreshOnEvents
	if len(events) == 0 {
		return nil
	}
	cancel, err := l.Watch(c, events...)
	if err != nil {
		return err
	}
	c.OnClose(cancel)
	return nil
}

func (l *Listener) release(toks []Token) {
	for _, tok := range toks {
		l.mu.Lock()
		delete(l.tokens, tok)
		l.mu.Unlock()

		if err := l.ch.Unsubscribe(tok); err != nil && !errors.Is(err, ErrUnknownToken) {
			l.logger.WithField("token", tok).WithError(err).Warn("unsubscribe failed")
		}
	}
}

func (l *Listener) handle(target Refresher, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	if e.Payload.Actor == "" || e.Payload.Actor != l.opts.LocalActor {
		level, message := Describe(e)
		l.notifier.Notify(level, message)
	}

	logger := l.logger.WithFields(logrus.Fields{
		"resource": target.Name(),
		"event":    e.Name,
		"entity":   e.Payload.EntityID,
	})

	l.group.Go(func() error {
		ctx, cancel := context.WithTimeout(l.ctx, l.opts.RefreshTimeout)
		defer cancel()

		err := target.Refresh(ctx)
		switch {
		case err == nil:
			logger.Debug("refreshed after realtime event")
		case errors.Is(err, listsync.ErrSuperseded), errors.Is(err, listsync.ErrClosed):
		default:
			logger.WithError(err).Warn("refresh after realtime event failed")
		}
		return nil
	})
}

// Close unsubscribes every watch, cancels refreshes in flight and waits for
// them to return.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	toks := make([]Token, 0, len(l.tokens))
	for tok := range l.tokens {
		toks = append(toks, tok)
	}
	l.mu.Unlock()

	l.release(toks)
	l.cancel()
	return l.group.Wait()
}

package realtime

import (
	"strings"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
)

type subscription struct {
	event   string
	handler Handler
}

// Bus is an in-process Channel. Transports decode remote messages and
// Publish them here; tests publish directly.
type Bus struct {
	subs   *xsync.MapOf[Token, subscription]
	logger logrus.FieldLogger
}

// NewBus returns an empty bus. A nil logger uses the logrus standard logger.
func NewBus(logger logrus.FieldLogger) *Bus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bus{
		subs:   xsync.NewMapOf[Token, subscription](),
		logger: logger,
	}
}

// Subscribe registers h for event.
func (b *Bus) Subscribe(event string, h Handler) (Token, error) {
	event = strings.TrimSpace(event)
	if event == "" || h == nil {
		return "", ErrInvalidEvent
	}
	tok := Token(uuid.NewString())
	b.subs.Store(tok, subscription{event: event, handler: h})
	return tok, nil
}

// Unsubscribe removes the subscription identified by tok.
func (b *Bus) Unsubscribe(tok Token) error {
	if _, ok := b.subs.LoadAndDelete(tok); !ok {
		return ErrUnknownToken
	}
	return nil
}

// Publish delivers e synchronously to every subscriber of e.Name and returns
// how many handlers ran. A panicking handler is logged and skipped.
func (b *Bus) Publish(e Event) int {
	delivered := 0
	b.subs.Range(func(tok Token, sub subscription) bool {
		if sub.event != e.Name {
			return true
		}
		b.deliver(tok, sub.handler, e)
		delivered++
		return true
	})
	return delivered
}

func (b *Bus) deliver(tok Token, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event": e.Name,
				"token": tok,
				"panic": r,
			}).Error("realtime handler panicked")
		}
	}()
	h(e)
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	return b.subs.Size()
}

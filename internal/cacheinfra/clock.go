package cacheinfra

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// sturdycClock adapts a clockwork.Clock to the clock contract sturdyc expects,
// so tests can drive entry ages with a fake clock.
type sturdycClock struct {
	clockwork.Clock
}

func (c sturdycClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := c.Clock.NewTicker(d)
	return t.Chan(), t.Stop
}

func (c sturdycClock) NewTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := c.Clock.NewTimer(d)
	return t.Chan(), t.Stop
}

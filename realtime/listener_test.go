package realtime_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
	"github.com/goliatone/go-garage-sync/pkg/testsupport"
	"github.com/goliatone/go-garage-sync/realtime"
)

type notification struct {
	level   realtime.Level
	message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(level realtime.Level, message string) {
	n.mu.Lock()
	n.sent = append(n.sent, notification{level, message})
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type fakeRefresher struct {
	name    string
	calls   atomic.Int32
	refresh func(ctx context.Context) error
}

func (f *fakeRefresher) Name() string { return f.name }

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	if f.refresh != nil {
		return f.refresh(ctx)
	}
	return nil
}

func TestListenerPreBookingStatusChange(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	storeCfg := cache.DefaultConfig()
	storeCfg.Clock = clock
	store, err := cache.NewStore(storeCfg)
	require.NoError(t, err)

	lister := testsupport.NewFakeLister(
		testsupport.ListStep{Response: testsupport.Page(`{"id":"p1","status":"pending"}`, `{"id":"p2","status":"pending"}`)},
		testsupport.ListStep{Response: testsupport.Page(`{"id":"p2","status":"pending"}`)},
	)
	coord, err := listsync.New(listsync.ResourceConfig{
		Name:            "prebookings",
		TTL:             time.Minute,
		Defaults:        cache.QueryDefaults{Limit: 10, Status: "pending"},
		DropIneligible:  true,
		RefreshOnEvents: realtime.BookingEvents,
	}, listsync.Deps{Store: store, Lister: lister})
	require.NoError(t, err)
	defer coord.Close()

	_, err = coord.Fetch(ctx, cache.QueryState{})
	require.NoError(t, err)

	bus := realtime.NewBus(nil)
	notifier := &recordingNotifier{}
	listener := realtime.NewListener(bus, notifier, realtime.Options{LocalActor: "u-1"})
	defer listener.Close()
	require.NoError(t, listener.Attach(coord))

	bus.Publish(realtime.Event{
		Name:    realtime.EventBookingStatusChanged,
		Payload: realtime.Payload{Status: "arrived", EntityID: "p1", Actor: "u-2"},
	})

	assert.Eventually(t, func() bool {
		items := coord.State().Items
		return len(items) == 1 && items[0].ID == "p2"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, lister.Calls(), "the event forces a refetch inside the ttl")
	assert.Equal(t, []notification{{realtime.LevelInfo, "Booking status changed to arrived"}}, notifier.all())
}

func TestListenerOwnActorRefreshesSilently(t *testing.T) {
	bus := realtime.NewBus(nil)
	notifier := &recordingNotifier{}
	listener := realtime.NewListener(bus, notifier, realtime.Options{LocalActor: "u-1"})

	target := &fakeRefresher{name: "bookings"}
	_, err := listener.Watch(target, realtime.EventBookingCreated)
	require.NoError(t, err)

	bus.Publish(realtime.Event{Name: realtime.EventBookingCreated, Payload: realtime.Payload{Actor: "u-1"}})
	require.NoError(t, listener.Close())

	assert.Equal(t, int32(1), target.calls.Load())
	assert.Empty(t, notifier.all())
}

func TestListenerRefreshesConcurrently(t *testing.T) {
	bus := realtime.NewBus(nil)
	listener := realtime.NewListener(bus, nil, realtime.Options{})
	defer listener.Close()

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	target := &fakeRefresher{name: "bookings", refresh: func(ctx context.Context) error {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}
	_, err := listener.Watch(target, realtime.EventBookingCreated, realtime.EventBookingUpdated)
	require.NoError(t, err)

	bus.Publish(realtime.Event{Name: realtime.EventBookingCreated})
	bus.Publish(realtime.Event{Name: realtime.EventBookingUpdated})

	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatalf("refresh %d did not start while the other was in flight", i+1)
		}
	}
	close(release)
}

func TestListenerCancelUnsubscribes(t *testing.T) {
	bus := realtime.NewBus(nil)
	listener := realtime.NewListener(bus, nil, realtime.Options{})
	defer listener.Close()

	target := &fakeRefresher{name: "bookings"}
	cancel, err := listener.Watch(target, realtime.BookingEvents...)
	require.NoError(t, err)
	assert.Equal(t, 4, bus.Len())

	cancel()
	cancel()
	assert.Zero(t, bus.Len())

	bus.Publish(realtime.Event{Name: realtime.EventBookingCreated})
	require.NoError(t, listener.Close())
	assert.Zero(t, target.calls.Load())
}

func TestListenerCloseCancelsInFlightRefreshes(t *testing.T) {
	bus := realtime.NewBus(nil)
	listener := realtime.NewListener(bus, nil, realtime.Options{})

	started := make(chan struct{})
	var sawCancel atomic.Bool
	target := &fakeRefresher{name: "bookings", refresh: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}}
	_, err := listener.Watch(target, realtime.EventBookingDeleted)
	require.NoError(t, err)

	bus.Publish(realtime.Event{Name: realtime.EventBookingDeleted})
	<-started

	require.NoError(t, listener.Close())
	assert.True(t, sawCancel.Load())
	assert.Zero(t, bus.Len())

	bus.Publish(realtime.Event{Name: realtime.EventBookingDeleted})
	assert.Equal(t, int32(1), target.calls.Load())

	_, err = listener.Watch(target, realtime.EventBookingDeleted)
	assert.ErrorIs(t, err, listsync.ErrClosed)
}

func TestListenerAttachFollowsCoordinatorLifetime(t *testing.T) {
	store, err := cache.NewStore(cache.DefaultConfig())
	require.NoError(t, err)
	coord, err := listsync.New(listsync.ResourceConfig{
		Name:            "arrived",
		TTL:             time.Minute,
		Defaults:        cache.QueryDefaults{Limit: 10, Status: "arrived"},
		RefreshOnEvents: []string{realtime.EventBookingStatusChanged},
	}, listsync.Deps{Store: store, Lister: testsupport.NewFakeLister()})
	require.NoError(t, err)

	bus := realtime.NewBus(nil)
	listener := realtime.NewListener(bus, nil, realtime.Options{})
	defer listener.Close()

	require.NoError(t, listener.Attach(coord))
	assert.Equal(t, 1, bus.Len())

	require.NoError(t, coord.Close())
	assert.Zero(t, bus.Len())
}

type failingChannel struct {
	*realtime.Bus
	allow int
}

func (c *failingChannel) Subscribe(event string, h realtime.Handler) (realtime.Token, error) {
	if c.allow == 0 {
		return "", errors.New("channel offline")
	}
	c.allow--
	return c.Bus.Subscribe(event, h)
}

func TestListenerWatchRollsBackOnSubscribeError(t *testing.T) {
	ch := &failingChannel{Bus: realtime.NewBus(nil), allow: 1}
	listener := realtime.NewListener(ch, nil, realtime.Options{})
	defer listener.Close()

	_, err := listener.Watch(&fakeRefresher{name: "bookings"}, realtime.EventBookingCreated, realtime.EventBookingUpdated)
	require.Error(t, err)
	assert.Zero(t, ch.Len())
}

package di

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/valyala/fasthttp"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
	"github.com/goliatone/go-garage-sync/pkg/config"
	"github.com/goliatone/go-garage-sync/pkg/testsupport"
	"github.com/goliatone/go-garage-sync/realtime"
	"github.com/goliatone/go-garage-sync/resources"
	"github.com/goliatone/go-garage-sync/sessionstore"
)

func TestNewContainer(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Capacity = 1000
	cfg.Cache.NumShards = 16
	cfg.Cache.MaxTTL = 5 * time.Minute

	container, err := NewContainer(cfg)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	if container.Store() == nil {
		t.Error("Container should have a non-nil store")
	}
	if container.Listener() == nil {
		t.Error("Container should have a non-nil listener")
	}
	if _, ok := container.Session().(*sessionstore.Memory); !ok {
		t.Errorf("Expected memory session store, got %T", container.Session())
	}
	if container.Remote() != nil {
		t.Error("Remote client should be nil without a base url")
	}
	if container.Registry() != nil {
		t.Error("Registry should be nil with metrics disabled")
	}

	stored := container.Config()
	if stored.Cache.Capacity != cfg.Cache.Capacity {
		t.Errorf("Expected capacity %d, got %d", cfg.Cache.Capacity, stored.Cache.Capacity)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	if got, want := container.Config().Cache, config.Default().Cache; got != want {
		t.Errorf("Expected default cache settings %+v, got %+v", want, got)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Capacity = 0

	if _, err := NewContainer(cfg); err == nil {
		t.Error("Expected error for invalid config, got nil")
	}
}

func TestNewContainer_WebsocketTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Realtime.Transport = config.TransportWebsocket
	cfg.Realtime.URL = "ws://127.0.0.1:1/events"

	container, err := NewContainer(cfg)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if container.transport == nil {
		t.Fatal("Expected a websocket transport")
	}
	if err := container.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

func TestNewCoordinator_Errors(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	if _, err := container.NewCoordinator("gearboxes"); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("Expected ErrUnknownResource, got %v", err)
	}
	if _, err := container.NewCoordinator(resources.Bookings); !errors.Is(err, ErrNoRemote) {
		t.Errorf("Expected ErrNoRemote, got %v", err)
	}
}

// envelopeDoer answers every request with a fixed JSON body.
type envelopeDoer struct {
	body  string
	paths []string
}

func (d *envelopeDoer) DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, _ time.Duration) error {
	d.paths = append(d.paths, string(req.URI().Path()))
	resp.SetStatusCode(fasthttp.StatusOK)
	resp.SetBodyString(d.body)
	return nil
}

func TestNewCoordinator_RemoteWiring(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.BaseURL = "https://garage.example.com/api"
	cfg.Remote.Token = "t0k"

	doer := &envelopeDoer{body: `{"success":true,"data":{"items":[{"_id":"s1","name":"Oil change"}],"pagination":{"page":1,"totalPages":1,"total":1}}}`}
	container, err := NewContainer(cfg, WithDoer(doer))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	coord, err := container.NewCoordinator(resources.Services)
	if err != nil {
		t.Fatalf("NewCoordinator() failed: %v", err)
	}

	snap, err := coord.Fetch(context.Background(), cache.QueryState{})
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].ID != "s1" {
		t.Fatalf("Unexpected items %+v", snap.Items)
	}
	if len(doer.paths) != 1 || doer.paths[0] != "/api/services" {
		t.Errorf("Unexpected request paths %v", doer.paths)
	}

	if _, err := coord.Create(context.Background(), map[string]any{"name": "Tyres"}); !errors.Is(err, listsync.ErrNoMutator) {
		t.Errorf("Services are read only, expected ErrNoMutator, got %v", err)
	}
}

func TestAttach_RefreshesOnBusEvents(t *testing.T) {
	clock := clockwork.NewFakeClock()
	container, err := NewContainerWithDefaults(WithClock(clock))
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	def, _ := resources.Lookup(resources.PreBookings)
	lister := testsupport.NewFakeLister(testsupport.ListStep{Response: testsupport.Page(`{"id":"b1","status":"pending"}`)})

	coord, err := container.Attach(def.Config, lister, nil)
	if err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}
	if _, err := coord.Fetch(context.Background(), cache.QueryState{}); err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	container.Bus().Publish(realtime.Event{
		Name:    realtime.EventBookingStatusChanged,
		Payload: realtime.Payload{Status: resources.StatusArrived, EntityID: "b1"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for lister.Calls() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected a forced refresh, lister called %d times", lister.Calls())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClose_ClosesCoordinators(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	def, _ := resources.Lookup(resources.Parts)
	coord, err := container.Attach(def.Config, testsupport.NewFakeLister(), nil)
	if err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}

	if err := container.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := coord.Fetch(context.Background(), cache.QueryState{}); !errors.Is(err, listsync.ErrClosed) {
		t.Errorf("Expected ErrClosed after container Close, got %v", err)
	}
	if _, err := container.Attach(def.Config, testsupport.NewFakeLister(), nil); !errors.Is(err, listsync.ErrClosed) {
		t.Errorf("Expected ErrClosed from Attach after Close, got %v", err)
	}
	if err := container.Close(); err != nil {
		t.Errorf("Second Close() should be a no-op, got %v", err)
	}
}

func TestMetricsEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true

	container, err := NewContainer(cfg)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	def, _ := resources.Lookup(resources.Invoices)
	coord, err := container.Attach(def.Config, testsupport.NewFakeLister(), nil)
	if err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}
	ctx := context.Background()
	coord.Fetch(ctx, cache.QueryState{})
	coord.Fetch(ctx, cache.QueryState{})

	families, err := container.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{"garagesync_cache_lookups_total", "garagesync_fetch_duration_seconds"} {
		if !found[name] {
			t.Errorf("Expected metric %s to be gathered", name)
		}
	}
}

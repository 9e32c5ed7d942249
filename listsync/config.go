package listsync

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-garage-sync/cache"
)

// ResourceConfig tunes the shared coordinator engine for one list resource.
type ResourceConfig struct {
	// Name is the resource name and the cache namespace.
	Name string
	// TTL is how long a fetched page is served from cache; it is also the
	// period of the background refetch started by Start.
	TTL time.Duration
	// Defaults fill query fields the caller left empty.
	Defaults cache.QueryDefaults
	// InitialQuery is the query Refresh uses before any Fetch was made.
	InitialQuery cache.QueryState
	// Normalizer maps server records to Items.
	Normalizer Normalizer
	// StatusField is the record field holding the status. Defaults to "status".
	StatusField string
	// DropIneligible removes an item from the list after a status
	// transition that no longer matches the current status filter.
	DropIneligible bool
	// RefreshOnEvents lists realtime events that force a refresh.
	RefreshOnEvents []string
	// MirrorSession mirrors fetched pages into the session store.
	MirrorSession bool
}

// Validate checks the configuration.
func (c ResourceConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Defaults, validation.By(func(any) error {
			return validation.Validate(c.Defaults.Limit, validation.Required, validation.Min(1), validation.Max(500))
		})),
	)
}

func (c ResourceConfig) statusField() string {
	if c.StatusField == "" {
		return DefaultStatusField
	}
	return c.StatusField
}

// eligible reports whether item still belongs in a list filtered by status.
// An empty filter matches everything; a comma separated filter matches any.
func (c ResourceConfig) eligible(item Item, statusFilter string) bool {
	if !c.DropIneligible || statusFilter == "" {
		return true
	}
	status := item.Status(c.statusField())
	for _, want := range strings.Split(statusFilter, ",") {
		if strings.EqualFold(strings.TrimSpace(want), status) {
			return true
		}
	}
	return false
}

// Deps are the collaborators a coordinator is wired with.
type Deps struct {
	// Store is the shared TTL store; required.
	Store cache.Store
	// Builder derives fingerprints; nil uses the default builder.
	Builder *cache.FingerprintBuilder
	// Lister fetches pages; required.
	Lister Lister
	// Mutator performs writes; optional.
	Mutator Mutator
	// Session is the optional session mirror.
	Session SessionStore
	// Hooks receives instrumentation events; optional.
	Hooks Hooks
	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

func (d Deps) validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Store, validation.Required),
		validation.Field(&d.Lister, validation.Required),
	)
}

// Package resources defines the list resources of the garage back office:
// their cache namespaces, page sizes, default sort orders, status filters and
// the realtime events that invalidate them.
//
// Page sizes differ between resources on purpose; they mirror what each
// screen shows and are kept as named constants rather than one shared value.
package resources

import (
	"sort"
	"time"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
	"github.com/goliatone/go-garage-sync/realtime"
)

// Resource names, also used as cache namespaces.
const (
	Bookings         = "bookings"
	PreBookings      = "prebookings"
	ArrivedBookings  = "arrived_bookings"
	Invoices         = "invoices"
	InternalInvoices = "internal_invoices"
	Parts            = "parts"
	PurchaseInvoices = "purchase_invoices"
	Suppliers        = "suppliers"
	Services         = "services"
	Users            = "users"
)

// Page sizes.
const (
	BookingsPageSize  = 10
	InvoicesPageSize  = 25
	InventoryPageSize = 20
	OptionsPageSize   = 100
)

// Time-to-live of cached pages.
const (
	ListTTL    = 60 * time.Second
	OptionsTTL = 5 * time.Minute
)

// Booking statuses used as list filters.
const (
	StatusPending = "pending"
	StatusArrived = "arrived"
)

// Definition couples a coordinator configuration with its REST endpoint.
type Definition struct {
	Config listsync.ResourceConfig
	// Path is the collection endpoint relative to the API base URL.
	Path string
	// Mutable resources are wired with a Mutator.
	Mutable bool
}

func list(name, path string, ttl time.Duration, limit int, sortField, sortDir string) Definition {
	return Definition{
		Path:    path,
		Mutable: true,
		Config: listsync.ResourceConfig{
			Name: name,
			TTL:  ttl,
			Defaults: cache.QueryDefaults{
				Limit:     limit,
				SortField: sortField,
				SortDir:   sortDir,
			},
		},
	}
}

func bookingList(name, status, sortField, sortDir string) Definition {
	d := list(name, "/bookings", ListTTL, BookingsPageSize, sortField, sortDir)
	d.Config.Defaults.Status = status
	d.Config.Normalizer = listsync.Normalizer{
		IDAliases: []string{"id", "_id", "bookingId"},
		Defaults:  map[string]any{"notes": "", "serviceIds": []string{}},
	}
	d.Config.RefreshOnEvents = realtime.BookingEvents
	d.Config.DropIneligible = status != ""
	return d
}

var definitions = map[string]Definition{}

func register(d Definition) {
	definitions[d.Config.Name] = d
}

func init() {
	register(bookingList(Bookings, "", "createdAt", cache.SortDesc))
	register(bookingList(PreBookings, StatusPending, "scheduledAt", cache.SortAsc))
	register(bookingList(ArrivedBookings, StatusArrived, "arrivedAt", cache.SortDesc))

	invoices := list(Invoices, "/invoices", ListTTL, InvoicesPageSize, "issuedAt", cache.SortDesc)
	invoices.Config.Normalizer = listsync.Normalizer{
		IDAliases: []string{"id", "_id", "invoiceNumber"},
		Defaults:  map[string]any{"status": "draft"},
	}
	register(invoices)

	internal := list(InternalInvoices, "/internal-invoices", ListTTL, InvoicesPageSize, "issuedAt", cache.SortDesc)
	internal.Config.Normalizer = invoices.Config.Normalizer
	register(internal)

	parts := list(Parts, "/parts", ListTTL, InventoryPageSize, "name", cache.SortAsc)
	parts.Config.Normalizer = listsync.Normalizer{
		IDAliases: []string{"id", "_id", "sku"},
		Defaults:  map[string]any{"quantity": 0},
	}
	register(parts)

	register(list(PurchaseInvoices, "/purchase-invoices", ListTTL, InventoryPageSize, "invoiceDate", cache.SortDesc))
	register(list(Suppliers, "/suppliers", ListTTL, InventoryPageSize, "name", cache.SortAsc))

	for _, name := range []string{Services, Users} {
		d := list(name, "/"+name, OptionsTTL, OptionsPageSize, "name", cache.SortAsc)
		d.Mutable = false
		d.Config.MirrorSession = true
		register(d)
	}
}

// Lookup returns the definition of name.
func Lookup(name string) (Definition, bool) {
	d, ok := definitions[name]
	return d, ok
}

// Names returns every resource name in sorted order.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every definition ordered by name.
func All() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, name := range Names() {
		out = append(out, definitions[name])
	}
	return out
}

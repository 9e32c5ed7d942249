package listsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-garage-sync/cache"
)

// Pagination is the pagination block reported by the server.
type Pagination struct {
	Page        int  `json:"page"`
	TotalPages  int  `json:"totalPages"`
	Total       int  `json:"total"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// ListResponse is what a Lister reports for one query.
type ListResponse struct {
	OK         bool
	Items      []json.RawMessage
	Pagination Pagination
	Error      string
}

// MutationResponse is what a Mutator reports for one write.
type MutationResponse struct {
	OK    bool
	Item  json.RawMessage
	Error string
}

// Lister fetches one page of a list resource. It must be idempotent for
// identical queries. A returned error is treated as a transport failure; a
// response with OK=false as a business failure.
type Lister interface {
	List(ctx context.Context, q cache.QueryState) (ListResponse, error)
}

// Mutator performs server-side writes on a list resource.
type Mutator interface {
	Create(ctx context.Context, payload any) (MutationResponse, error)
	Update(ctx context.Context, id string, patch any) (MutationResponse, error)
	SetStatus(ctx context.Context, id string, status string) (MutationResponse, error)
}

// SessionStore mirrors low-churn lists into a user session scoped key-value
// store so they survive a reload within their TTL.
type SessionStore interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Hooks receives coordinator events for instrumentation.
type Hooks interface {
	CacheHit(resource string)
	CacheMiss(resource string)
	SessionRestored(resource string)
	FetchCompleted(resource string, elapsed time.Duration, err error)
	Superseded(resource string)
}

type nopHooks struct{}

func (nopHooks) CacheHit(string) {}
func (nopHooks) CacheMiss(string) {}
func (nopHooks) SessionRestored(string) {}
func (nopHooks) FetchCompleted(string, time.Duration, error) {}
func (nopHooks) Superseded(string) {}

package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
)

// Raw converts a JSON literal into a record.
func Raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

// Records converts JSON literals into records.
func Records(literals ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(literals))
	for _, l := range literals {
		out = append(out, Raw(l))
	}
	return out
}

// Page builds a successful single page response holding records.
func Page(records ...string) listsync.ListResponse {
	return listsync.ListResponse{
		OK:    true,
		Items: Records(records...),
		Pagination: listsync.Pagination{
			Page:       1,
			TotalPages: 1,
			Total:      len(records),
		},
	}
}

// Failure builds a business failure response.
func Failure(message string) listsync.ListResponse {
	return listsync.ListResponse{OK: false, Error: message}
}

// LoadListResponse reads a server envelope fixture shaped like
// {"items": [...], "pagination": {...}} into a successful response.
func LoadListResponse(t *testing.T, path string) listsync.ListResponse {
	t.Helper()

	var envelope struct {
		Items      []json.RawMessage   `json:"items"`
		Pagination listsync.Pagination `json:"pagination"`
	}
	LoadFixtureJSON(t, path, &envelope)

	return listsync.ListResponse{OK: true, Items: envelope.Items, Pagination: envelope.Pagination}
}

// ListStep scripts one List call of a FakeLister.
type ListStep struct {
	Response listsync.ListResponse
	Err      error
	// Panic makes the call panic with the given value.
	Panic any
	// Gate, when set, blocks the call until it is closed or ctx is done.
	Gate chan struct{}
}

// FakeLister is a scriptable Lister. Calls consume steps in order; once the
// script is exhausted the last step repeats.
type FakeLister struct {
	mu      sync.Mutex
	steps   []ListStep
	queries []cache.QueryState
	entered chan int
}

// NewFakeLister returns a lister scripted with steps.
func NewFakeLister(steps ...ListStep) *FakeLister {
	return &FakeLister{steps: steps, entered: make(chan int, 64)}
}

// Push appends steps to the script.
func (f *FakeLister) Push(steps ...ListStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, steps...)
}

// List implements listsync.Lister.
func (f *FakeLister) List(ctx context.Context, q cache.QueryState) (listsync.ListResponse, error) {
	f.mu.Lock()
	call := len(f.queries)
	f.queries = append(f.queries, q)
	var step ListStep
	switch {
	case len(f.steps) == 0:
		step = ListStep{Response: Page()}
	case call < len(f.steps):
		step = f.steps[call]
	default:
		step = f.steps[len(f.steps)-1]
	}
	f.mu.Unlock()

	select {
	case f.entered <- call:
	default:
	}

	if step.Gate != nil {
		select {
		case <-step.Gate:
		case <-ctx.Done():
			return listsync.ListResponse{}, ctx.Err()
		}
	}
	if step.Panic != nil {
		panic(step.Panic)
	}
	return step.Response, step.Err
}

// Entered delivers the zero-based index of every call as it starts.
func (f *FakeLister) Entered() <-chan int {
	return f.entered
}

// Calls returns how many times List was called.
func (f *FakeLister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// Queries returns the queries List was called with.
func (f *FakeLister) Queries() []cache.QueryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cache.QueryState(nil), f.queries...)
}

// MutationCall records one FakeMutator invocation.
type MutationCall struct {
	Op      string
	ID      string
	Payload any
}

// FakeMutator is a Mutator backed by optional per-operation functions.
// Missing functions echo the request back as the confirmed item.
type FakeMutator struct {
	CreateFn    func(payload any) (listsync.MutationResponse, error)
	UpdateFn    func(id string, patch any) (listsync.MutationResponse, error)
	SetStatusFn func(id, status string) (listsync.MutationResponse, error)

	mu    sync.Mutex
	calls []MutationCall
}

func (f *FakeMutator) record(call MutationCall) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

// Calls returns the recorded invocations.
func (f *FakeMutator) Calls() []MutationCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MutationCall(nil), f.calls...)
}

// Create implements listsync.Mutator.
func (f *FakeMutator) Create(_ context.Context, payload any) (listsync.MutationResponse, error) {
	f.record(MutationCall{Op: "create", Payload: payload})
	if f.CreateFn != nil {
		return f.CreateFn(payload)
	}
	return echo(payload)
}

// Update implements listsync.Mutator.
func (f *FakeMutator) Update(_ context.Context, id string, patch any) (listsync.MutationResponse, error) {
	f.record(MutationCall{Op: "update", ID: id, Payload: patch})
	if f.UpdateFn != nil {
		return f.UpdateFn(id, patch)
	}
	return echo(patch)
}

// SetStatus implements listsync.Mutator.
func (f *FakeMutator) SetStatus(_ context.Context, id, status string) (listsync.MutationResponse, error) {
	f.record(MutationCall{Op: "status", ID: id, Payload: status})
	if f.SetStatusFn != nil {
		return f.SetStatusFn(id, status)
	}
	return Confirmed(fmt.Sprintf(`{"id":%q,"status":%q}`, id, status)), nil
}

// Confirmed builds a successful mutation response for a JSON literal.
func Confirmed(record string) listsync.MutationResponse {
	return listsync.MutationResponse{OK: true, Item: Raw(record)}
}

func echo(v any) (listsync.MutationResponse, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return listsync.MutationResponse{}, err
	}
	return listsync.MutationResponse{OK: true, Item: data}, nil
}

package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
	"github.com/goliatone/go-garage-sync/reposource"
)

// TestConcurrentAccess drives one coordinator from many goroutines across a
// handful of pages and checks the published state stays coherent.
func TestConcurrentAccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := newMockUserRepository()
	repo.seed(100)
	_, coord := newRepoCoordinator(t, clock, repo)

	ctx := context.Background()
	const numGoroutines = 50
	const operationsPerGoroutine = 20

	var wg sync.WaitGroup
	errCh := make(chan error, numGoroutines)

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < operationsPerGoroutine; i++ {
				q := cache.QueryState{Page: (g+i)%4 + 1, Limit: 25}
				if _, err := coord.Fetch(ctx, q); err != nil && !errors.Is(err, listsync.ErrSuperseded) {
					errCh <- fmt.Errorf("goroutine %d op %d: %w", g, i, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}

	state := coord.State()
	if state.Loading {
		t.Error("Coordinator should not be loading once every fetch returned")
	}
	if state.Err != "" {
		t.Errorf("Unexpected published error %q", state.Err)
	}
	// four distinct pages, each listed at most a few times under contention
	if calls := repo.getCallCount("List"); calls < 4 {
		t.Errorf("Expected at least one List call per page, got %d", calls)
	}
}

// TestConcurrentMutations applies updates from many goroutines; every update
// must be folded into the list exactly once.
func TestConcurrentMutations(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := newMockUserRepository()
	repo.seed(20)
	_, coord := newRepoCoordinator(t, clock, repo)
	ctx := context.Background()

	if _, err := coord.Fetch(ctx, cache.QueryState{}); err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%03d", i)
			if _, err := coord.Update(ctx, id, map[string]any{"name": "Updated " + id}); err != nil {
				t.Errorf("Update(%s) failed: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	state := coord.State()
	if len(state.Items) != 20 {
		t.Fatalf("Expected 20 items, got %d", len(state.Items))
	}
	for i, item := range state.Items {
		if want := "Updated " + item.ID; item.Get("name").String() != want {
			t.Errorf("Item %s: expected name %q, got %q", item.ID, want, item.Get("name").String())
		}
		if item.Seq != i+1 {
			t.Errorf("Item %s: expected seq %d, got %d", item.ID, i+1, item.Seq)
		}
	}
}

func BenchmarkCachedFetch(b *testing.B) {
	container, err := NewContainerWithDefaults(WithClock(clockwork.NewFakeClock()))
	if err != nil {
		b.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	repo := newMockUserRepository()
	repo.seed(100)
	src := reposource.New[User](repo)
	coord, err := container.Attach(usersConfig(), src, src)
	if err != nil {
		b.Fatalf("Attach() failed: %v", err)
	}

	ctx := context.Background()
	q := cache.QueryState{Limit: 100}
	if _, err := coord.Fetch(ctx, q); err != nil {
		b.Fatalf("Fetch() failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := coord.Fetch(ctx, q); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUncachedFetch(b *testing.B) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		b.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	repo := newMockUserRepository()
	repo.seed(100)
	src := reposource.New[User](repo)
	coord, err := container.Attach(usersConfig(), src, src)
	if err != nil {
		b.Fatalf("Attach() failed: %v", err)
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := coord.Refresh(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

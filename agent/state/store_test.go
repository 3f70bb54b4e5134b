package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSnapshots struct {
	mu      sync.Mutex
	states  map[string]*CallState
	loadErr error
	saves   int
	deletes []string
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{states: map[string]*CallState{}}
}

func (f *fakeSnapshots) Load(ctx context.Context, callID string) (*CallState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	st, ok := f.states[callID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (f *fakeSnapshots) Save(ctx context.Context, st *CallState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.states[st.CallID] = st.Clone()
	return nil
}

func (f *fakeSnapshots) Delete(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, callID)
	delete(f.states, callID)
	return nil
}

func routeAndAppend(intent Intent, user, agent string) func(*CallState) error {
	return func(st *CallState) error {
		if err := st.SetIntent(intent, time.Now()); err != nil {
			return err
		}
		st.AppendTurn(user, agent, time.Now())
		return nil
	}
}

func TestGetOrCreateCreatesEmptyState(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	st, err := store.GetOrCreate(context.Background(), " call-1 ")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if st.CallID != "call-1" {
		t.Fatalf("CallID = %q", st.CallID)
	}
	if st.Routed() || len(st.History) != 0 || len(st.CollectedFields) != 0 {
		t.Fatalf("unexpected non-empty state: %#v", st)
	}

	if _, err := store.GetOrCreate(context.Background(), "  "); !errors.Is(err, ErrInvalidCall) {
		t.Fatalf("GetOrCreate(empty) error = %v, want ErrInvalidCall", err)
	}
}

func TestGetUnknownCall(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Get() error = %v, want ErrStateNotFound", err)
	}
}

func TestUpdateCommitsOnlyOnSuccess(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Update(ctx, "call-2", routeAndAppend(IntentSell, "selling", "great")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	boom := errors.New("boom")
	_, err := store.Update(ctx, "call-2", func(st *CallState) error {
		st.AppendTurn("lost", "lost", time.Now())
		st.MergeFields(map[string]any{"bedrooms": 9}, time.Now())
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	st, err := store.Get(ctx, "call-2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(st.History) != 1 {
		t.Fatalf("history len = %d, want 1", len(st.History))
	}
	if _, ok := st.CollectedFields["bedrooms"]; ok {
		t.Fatal("failed update leaked a field")
	}
}

func TestUpdateSameCallIsSerialized(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, "call-3", func(st *CallState) error {
				if err := st.SetIntent(IntentBuy, time.Now()); err != nil {
					return err
				}
				st.AppendTurn(fmt.Sprintf("u%d", i), "a", time.Now())
				st.MergeFields(map[string]any{"bedrooms": len(st.History)}, time.Now())
				return nil
			})
			if err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	st, err := store.Get(ctx, "call-3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(st.History) != turns {
		t.Fatalf("history len = %d, want %d (lost update)", len(st.History), turns)
	}
	if st.CollectedFields["bedrooms"] != turns {
		t.Fatalf("bedrooms = %v, want %d", st.CollectedFields["bedrooms"], turns)
	}
}

func TestUpdateDifferentCallsDoNotBlock(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := store.Update(context.Background(), "slow", func(st *CallState) error {
			close(started)
			<-release
			return nil
		})
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := store.Update(ctx, "fast", routeAndAppend(IntentRent, "rent", "ok")); err != nil {
		t.Fatalf("Update(fast) blocked by another call: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	if _, err := store.Update(waitCtx, "slow", routeAndAppend(IntentRent, "x", "y")); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Update(slow) error = %v, want ErrLockTimeout while busy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("slow Update() error = %v", err)
	}
}

func TestSweepEvictsIdleCalls(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	var lastSize int
	store := NewMemoryStore(
		WithStateTTL(10*time.Minute),
		WithClock(clock.Now),
		WithSizeHook(func(n int) { lastSize = n }),
	)
	ctx := context.Background()

	if _, err := store.Update(ctx, "old", routeAndAppend(IntentSell, "a", "b")); err != nil {
		t.Fatalf("Update(old) error = %v", err)
	}
	clock.Advance(8 * time.Minute)
	if _, err := store.Update(ctx, "fresh", routeAndAppend(IntentSell, "a", "b")); err != nil {
		t.Fatalf("Update(fresh) error = %v", err)
	}
	clock.Advance(3 * time.Minute)

	if n := store.Sweep(clock.Now()); n != 1 {
		t.Fatalf("Sweep() evicted %d, want 1", n)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Get(old) error = %v, want ErrStateNotFound", err)
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Fatalf("Get(fresh) error = %v", err)
	}
	if lastSize != 1 {
		t.Fatalf("size hook = %d, want 1", lastSize)
	}
}

func TestSweepSkipsBusyCall(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(WithStateTTL(time.Minute), WithClock(clock.Now))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = store.Update(context.Background(), "busy", func(st *CallState) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	clock.Advance(time.Hour)
	if n := store.Sweep(clock.Now()); n != 0 {
		t.Fatalf("Sweep() evicted %d busy calls", n)
	}
	close(release)
	<-done

	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}
}

func TestDeleteEvictsAndDropsSnapshot(t *testing.T) {
	t.Parallel()

	snaps := newFakeSnapshots()
	store := NewMemoryStore(WithSnapshots(snaps))
	ctx := context.Background()

	if _, err := store.Update(ctx, "call-5", routeAndAppend(IntentBuy, "a", "b")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := store.Delete(ctx, "call-5"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", store.Len())
	}
	if len(snaps.deletes) != 1 || snaps.deletes[0] != "call-5" {
		t.Fatalf("snapshot deletes = %#v", snaps.deletes)
	}

	st, err := store.GetOrCreate(ctx, "call-5")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if st.Routed() {
		t.Fatal("deleted call must start over unrouted")
	}
}

func TestSnapshotsWriteThroughAndRestore(t *testing.T) {
	t.Parallel()

	snaps := newFakeSnapshots()
	ctx := context.Background()

	first := NewMemoryStore(WithSnapshots(snaps))
	if _, err := first.Update(ctx, "call-6", routeAndAppend(IntentSell, "selling", "tell me more")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if snaps.saves != 1 {
		t.Fatalf("saves = %d, want 1", snaps.saves)
	}

	restarted := NewMemoryStore(WithSnapshots(snaps))
	st, err := restarted.GetOrCreate(ctx, "call-6")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if st.ActiveIntent != IntentSell || len(st.History) != 1 {
		t.Fatalf("restored state = %#v", st)
	}
}

func TestSnapshotLoadFailureStartsFresh(t *testing.T) {
	t.Parallel()

	snaps := newFakeSnapshots()
	snaps.loadErr = errors.New("redis down")
	store := NewMemoryStore(WithSnapshots(snaps))

	st, err := store.GetOrCreate(context.Background(), "call-7")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if st.Routed() {
		t.Fatal("expected fresh state")
	}
}

func TestSnapshotForAnotherCallIsIgnored(t *testing.T) {
	t.Parallel()

	snaps := newFakeSnapshots()
	other := NewCallState("call-other", time.Now())
	if err := other.SetIntent(IntentRent, time.Now()); err != nil {
		t.Fatalf("SetIntent() error = %v", err)
	}
	snaps.states["call-8"] = other
	store := NewMemoryStore(WithSnapshots(snaps))
	ctx := context.Background()

	st, err := store.GetOrCreate(ctx, "call-8")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if st.CallID != "call-8" || st.Routed() {
		t.Fatalf("state = %#v, want fresh call-8", st)
	}
	if _, err := store.Update(ctx, "call-8", routeAndAppend(IntentSell, "selling", "great")); err != nil {
		t.Fatalf("Update() after mismatched snapshot error = %v", err)
	}
}

func TestCommitHooksRunUnderCallLock(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []int
	)
	hook := func(_ context.Context, committed *CallState) {
		n := len(committed.History)
		if n == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
	}

	first := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := store.Update(ctx, "call-9", func(st *CallState) error {
			close(first)
			return routeAndAppend(IntentBuy, "one", "a")(st)
		}, hook)
		if err != nil {
			t.Errorf("Update(one) error = %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-first
		if _, err := store.Update(ctx, "call-9", routeAndAppend(IntentBuy, "two", "b"), hook); err != nil {
			t.Errorf("Update(two) error = %v", err)
		}
	}()
	wg.Wait()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("hook order = %v, want [1 2]", order)
	}
}

func TestCommitHooksSkippedOnFailure(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	called := false
	_, err := store.Update(context.Background(), "call-10", func(st *CallState) error {
		return errors.New("boom")
	}, func(context.Context, *CallState) { called = true })
	if err == nil {
		t.Fatal("Update() error = nil, want boom")
	}
	if called {
		t.Fatal("commit hook ran for a rejected update")
	}
}

package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrStateNotFound = errors.New("call state not found")
	ErrNilCallState  = errors.New("call state is nil")
	ErrInvalidCall   = errors.New("call id is empty")
	ErrLockTimeout   = errors.New("call state lock not acquired")
)

const (
	defaultStateTTL      = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// Store is the call state contract used by the orchestrator.
type Store interface {
	// GetOrCreate returns a snapshot of the call, creating an empty one if unseen.
	GetOrCreate(ctx context.Context, callID string) (*CallState, error)
	// Get returns a snapshot of a known call or ErrStateNotFound.
	Get(ctx context.Context, callID string) (*CallState, error)
	// Update runs fn on a private copy while holding the call lock and commits
	// the copy only when fn returns nil. Updates for one call never interleave.
	// Hooks run after the commit, still under the call lock.
	Update(ctx context.Context, callID string, fn func(*CallState) error, hooks ...CommitHook) (*CallState, error)
	// Delete evicts the call after any in-flight update finishes.
	Delete(ctx context.Context, callID string) error
}

// CommitHook observes a committed state before the next update of the same
// call may start. It receives its own copy.
type CommitHook func(ctx context.Context, committed *CallState)

// Snapshotter persists committed call states outside the process.
type Snapshotter interface {
	Load(ctx context.Context, callID string) (*CallState, error)
	Save(ctx context.Context, st *CallState) error
	Delete(ctx context.Context, callID string) error
}

// MemoryOption customizes MemoryStore.
type MemoryOption func(*MemoryStore)

// WithStateTTL sets the idle time after which a call is evicted. Zero disables eviction.
func WithStateTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

func WithSweepInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithSnapshots enables write-through persistence and restore-on-miss.
func WithSnapshots(snapshots Snapshotter) MemoryOption {
	return func(s *MemoryStore) {
		s.snapshots = snapshots
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSizeHook is called with the number of held calls after every sweep or eviction.
func WithSizeHook(fn func(int)) MemoryOption {
	return func(s *MemoryStore) {
		s.onSize = fn
	}
}

type entry struct {
	// sem is a one-slot lock so waiting can honor context cancellation.
	sem      chan struct{}
	state    *CallState
	lastUsed time.Time
	evicted  bool
}

// MemoryStore keeps call states in process memory with one lock per call id.
// The map lock only guards entry lookup; no turn ever holds it.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl           time.Duration
	sweepInterval time.Duration
	snapshots     Snapshotter
	now           func() time.Time
	onSize        func(int)
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:       make(map[string]*entry),
		ttl:           defaultStateTTL,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, callID string) (*CallState, error) {
	callID, err := normalizeCallID(callID)
	if err != nil {
		return nil, err
	}

	e, err := s.acquire(ctx, callID)
	if err != nil {
		return nil, err
	}
	defer s.release(e)

	s.ensureLoaded(ctx, e, callID)
	return e.state.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (*CallState, error) {
	callID, err := normalizeCallID(callID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, ok := s.entries[callID]
	s.mu.Unlock()
	if !ok {
		if s.snapshots != nil {
			return s.snapshots.Load(ctx, callID)
		}
		return nil, ErrStateNotFound
	}

	e, err := s.acquire(ctx, callID)
	if err != nil {
		return nil, err
	}
	defer s.release(e)

	if e.state == nil {
		return nil, ErrStateNotFound
	}
	return e.state.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, callID string, fn func(*CallState) error, hooks ...CommitHook) (*CallState, error) {
	if fn == nil {
		return nil, errors.New("update func is nil")
	}
	callID, err := normalizeCallID(callID)
	if err != nil {
		return nil, err
	}

	e, err := s.acquire(ctx, callID)
	if err != nil {
		return nil, err
	}
	defer s.release(e)

	s.ensureLoaded(ctx, e, callID)

	draft := e.state.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	if draft.CallID != callID {
		return nil, fmt.Errorf("update changed call id %q -> %q", callID, draft.CallID)
	}
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("invalid call state after update: %w", err)
	}

	e.state = draft
	e.lastUsed = s.now()

	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, draft); err != nil {
			log.Warn().Err(err).Str("call_id", callID).Msg("persist call snapshot failed")
		}
	}

	for _, hook := range hooks {
		if hook != nil {
			hook(ctx, draft.Clone())
		}
	}

	return draft.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, callID string) error {
	callID, err := normalizeCallID(callID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	_, ok := s.entries[callID]
	s.mu.Unlock()

	if ok {
		e, err := s.acquire(ctx, callID)
		if err != nil {
			return err
		}
		s.mu.Lock()
		e.evicted = true
		delete(s.entries, callID)
		size := len(s.entries)
		s.mu.Unlock()
		s.release(e)
		s.reportSize(size)
	}

	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, callID); err != nil {
			return fmt.Errorf("delete call snapshot: %w", err)
		}
	}
	return nil
}

// Len returns the number of calls held in memory.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts calls idle for longer than the TTL. Calls with a turn in
// flight are skipped and reconsidered on the next sweep.
func (s *MemoryStore) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		s.reportSize(s.Len())
		return 0
	}

	s.mu.Lock()
	evicted := 0
	for id, e := range s.entries {
		select {
		case e.sem <- struct{}{}:
		default:
			continue
		}
		if now.Sub(e.lastUsed) >= s.ttl {
			e.evicted = true
			delete(s.entries, id)
			evicted++
		}
		<-e.sem
	}
	size := len(s.entries)
	s.mu.Unlock()

	s.reportSize(size)
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Int("remaining", size).Msg("call state sweep")
	}
	return evicted
}

// Run sweeps on every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

func (s *MemoryStore) acquire(ctx context.Context, callID string) (*entry, error) {
	for {
		s.mu.Lock()
		e, ok := s.entries[callID]
		created := false
		if !ok {
			e = &entry{
				sem:      make(chan struct{}, 1),
				lastUsed: s.now(),
			}
			s.entries[callID] = e
			created = true
		}
		size := len(s.entries)
		s.mu.Unlock()
		if created {
			s.reportSize(size)
		}

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: call_id=%s: %v", ErrLockTimeout, callID, ctx.Err())
		}

		if e.evicted {
			<-e.sem
			continue
		}
		return e, nil
	}
}

func (s *MemoryStore) release(e *entry) {
	<-e.sem
}

func (s *MemoryStore) ensureLoaded(ctx context.Context, e *entry, callID string) {
	if e.state != nil {
		return
	}

	if s.snapshots != nil {
		st, err := s.snapshots.Load(ctx, callID)
		switch {
		case err == nil && (st == nil || st.CallID != callID):
			log.Warn().Str("call_id", callID).Msg("call snapshot belongs to another call, starting fresh")
		case err == nil:
			st.EnsureFieldsMap()
			e.state = st
			e.lastUsed = s.now()
			return
		case !errors.Is(err, ErrStateNotFound):
			log.Warn().Err(err).Str("call_id", callID).Msg("restore call snapshot failed, starting fresh")
		}
	}

	e.state = NewCallState(callID, s.now())
	e.lastUsed = s.now()
}

func (s *MemoryStore) reportSize(n int) {
	if s.onSize != nil {
		s.onSize(n)
	}
}

func normalizeCallID(callID string) (string, error) {
	trimmed := strings.TrimSpace(callID)
	if trimmed == "" {
		return "", ErrInvalidCall
	}
	return trimmed, nil
}

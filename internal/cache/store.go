// Package cache implements the client-side cache and the optimistic
// mutation protocol that keeps it consistent with the authoritative store.
// The Store is an explicit, injected service: it starts empty, is populated
// by reads and mutations, and is torn down with the session.
package cache

import (
	"context"
	"sync"
)

// EntryID names one cached view.
type EntryID string

// Cached views shared across clients.
const (
	EntryAdminWorkItems  EntryID = "admin_work_items"
	EntryWorkerWorkItems EntryID = "worker_work_items"
	EntryDashboard       EntryID = "dashboard"
	EntryTodayAttendance EntryID = "today_attendance"
	EntryWorkerRoster    EntryID = "worker_roster"
)

// Fetcher loads an entry's value from the authoritative store.
type Fetcher func(ctx context.Context) (any, error)

// entry holds one cached value. gen is bumped whenever a newer write
// supersedes whatever background refresh may still be in flight, so a slow
// stale read can never clobber newer user intent.
type entry struct {
	value  any
	has    bool
	fresh  bool
	gen    uint64
	cancel context.CancelFunc
	fetch  Fetcher
}

// Store is the shared client-side cache. All access is serialized through
// one mutex; background refreshes run outside the lock and re-validate their
// generation before publishing.
type Store struct {
	mu       sync.Mutex
	entries  map[EntryID]*entry
	inflight sync.WaitGroup
	closed   bool
}

// NewStore constructs an empty cache store.
func NewStore() *Store {
	return &Store{entries: map[EntryID]*entry{}}
}

// Register installs the fetcher used to (re)populate one entry.
func (s *Store) Register(id EntryID, fetch Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(id).fetch = fetch
}

// Get returns the cached value for id and whether one is present.
func (s *Store) Get(id EntryID) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || !e.has {
		return nil, false
	}
	return e.value, true
}

// Fresh reports whether the entry holds a value not yet invalidated.
func (s *Store) Fresh(id EntryID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.has && e.fresh
}

// Put writes a value directly, marking the entry fresh. The write supersedes
// any in-flight background refresh of the same entry.
func (s *Store) Put(id EntryID, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(id)
	s.supersedeLocked(e)
	e.value = value
	e.has = true
	e.fresh = true
}

// Update applies fn to the entry's current value and stores the result.
// The entry need not hold a value yet; fn receives (nil, false) in that case.
func (s *Store) Update(id EntryID, fn func(prev any, ok bool) any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(id)
	s.supersedeLocked(e)
	var prev any
	if e.has {
		prev = e.value
	}
	e.value = fn(prev, e.has)
	e.has = true
	e.fresh = true
}

// CancelRefresh discards any in-flight background refresh for the entry
// without touching its value. Cancellation is cheap and has no partial side
// effects.
func (s *Store) CancelRefresh(id EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		s.supersedeLocked(e)
	}
}

// StartRefresh launches a background refresh for the entry, superseding any
// previous one. The fetched value is published only when no newer write or
// cancellation happened in the meantime.
func (s *Store) StartRefresh(ctx context.Context, id EntryID) {
	s.mu.Lock()
	e := s.entryLocked(id)
	if e.fetch == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.supersedeLocked(e)
	rctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	gen := e.gen
	fetch := e.fetch
	s.mu.Unlock()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		value, err := fetch(rctx)
		if err != nil {
			return
		}
		s.publish(id, gen, value)
	}()
}

// RefreshNow fetches and publishes the entry synchronously. Used by group
// invalidation, where ordering within the wave does not matter but
// determinism per entry does.
func (s *Store) RefreshNow(ctx context.Context, id EntryID) error {
	s.mu.Lock()
	e := s.entryLocked(id)
	if e.fetch == nil || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.supersedeLocked(e)
	gen := e.gen
	fetch := e.fetch
	s.mu.Unlock()

	value, err := fetch(ctx)
	if err != nil {
		return err
	}
	s.publish(id, gen, value)
	return nil
}

// publish stores a fetched value unless a newer write superseded the fetch.
func (s *Store) publish(id EntryID, gen uint64, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.gen != gen || s.closed {
		return
	}
	e.value = value
	e.has = true
	e.fresh = true
	e.cancel = nil
}

// Snapshot captures the exact state of the named entries for rollback.
type Snapshot struct {
	states map[EntryID]snapshotState
}

type snapshotState struct {
	value any
	has   bool
	fresh bool
}

// TakeSnapshot records current values of the named entries.
func (s *Store) TakeSnapshot(ids ...EntryID) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{states: make(map[EntryID]snapshotState, len(ids))}
	for _, id := range ids {
		st := snapshotState{}
		if e, ok := s.entries[id]; ok {
			st = snapshotState{value: e.value, has: e.has, fresh: e.fresh}
		}
		snap.states[id] = st
	}
	return snap
}

// Restore puts every snapshotted entry back exactly as captured, discarding
// whatever was written since. Nothing is merged.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range snap.states {
		e := s.entryLocked(id)
		s.supersedeLocked(e)
		e.value = st.value
		e.has = st.has
		e.fresh = st.fresh
	}
}

// Invalidate marks every entry of the given groups stale and re-fetches the
// ones with registered fetchers. Invalidating already-fresh entries is
// observable only as a re-fetch, never as a value change, so repeated
// invalidation is idempotent.
func (s *Store) Invalidate(ctx context.Context, groups ...Group) {
	for _, id := range EntriesForGroups(groups...) {
		s.markStale(id)
		_ = s.RefreshNow(ctx, id)
	}
}

// markStale clears the freshness flag while keeping the stale value visible.
func (s *Store) markStale(id EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.fresh = false
	}
}

// WaitInflight blocks until every background task started by the store has
// finished. Intended for tests and orderly teardown.
func (s *Store) WaitInflight() {
	s.inflight.Wait()
}

// Close cancels in-flight refreshes and drops all cached state.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	for _, e := range s.entries {
		s.supersedeLocked(e)
	}
	s.entries = map[EntryID]*entry{}
	s.mu.Unlock()
	s.inflight.Wait()
}

// entryLocked returns the entry for id, creating it when absent.
func (s *Store) entryLocked(id EntryID) *entry {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	return e
}

// supersedeLocked bumps the generation and cancels any in-flight refresh so
// its eventual result is discarded.
func (s *Store) supersedeLocked(e *entry) {
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

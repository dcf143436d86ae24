package cache

import (
	"context"
)

// Applier merges a mutation value into one cached entry's previous value.
// prev is nil when the entry held nothing.
type Applier[T any] func(prev any, ok bool, value T) any

// Replace is the default applier: the value becomes the entry's whole
// content.
func Replace[T any](_ any, _ bool, value T) any {
	return value
}

// Mutation describes one optimistic state change. Its life cycle is
// Idle -> Pending (provisional value applied) -> Committed or RolledBack.
type Mutation[T any] struct {
	// Entries are the cached views that display the mutated entity and
	// receive the provisional and authoritative values.
	Entries []EntryID
	// Groups are invalidated after commit, refreshing views the optimistic
	// write did not touch.
	Groups []Group
	// Provisional is the synthesized result written before the remote call,
	// e.g. an entity with a temporary id or a check-in stamped "now".
	Provisional T
	// Apply merges a value into an entry. Defaults to Replace.
	Apply Applier[T]
	// ApplyTo overrides Apply for individual entries.
	ApplyTo map[EntryID]Applier[T]
	// Send performs the remote call and returns the authoritative value.
	// Once sent it cannot be cancelled; only its cache effect is reverted.
	Send func(ctx context.Context) (T, error)
	// OnApplied runs right after the optimistic write, for UI affordances
	// that depend on the entity's state (e.g. collapsing a panel once a
	// check-in is provisionally recorded).
	OnApplied func(T)
}

// Run executes the mutation against the store. Before anything is sent, all
// in-flight refreshes of the affected entries are superseded so a slow stale
// read cannot clobber the optimistic value, and a snapshot is taken for
// rollback. On failure the snapshot is restored exactly; no server error
// data is merged into the cache. On success the authoritative value replaces
// the provisional one immediately, and group invalidation runs in the
// background.
func Run[T any](ctx context.Context, store *Store, m Mutation[T]) (T, error) {
	var zero T
	if m.Send == nil {
		return zero, nil
	}

	for _, id := range m.Entries {
		store.CancelRefresh(id)
	}
	snap := store.TakeSnapshot(m.Entries...)

	applyAll(store, m, m.Provisional)
	if m.OnApplied != nil {
		m.OnApplied(m.Provisional)
	}

	result, err := m.Send(ctx)
	if err != nil {
		store.Restore(snap)
		return zero, err
	}

	applyAll(store, m, result)

	if len(m.Groups) > 0 {
		groups := m.Groups
		store.inflight.Add(1)
		go func() {
			defer store.inflight.Done()
			store.Invalidate(context.WithoutCancel(ctx), groups...)
		}()
	}
	return result, nil
}

// applyAll writes value into every affected entry with its applier.
func applyAll[T any](store *Store, m Mutation[T], value T) {
	for _, id := range m.Entries {
		apply := m.Apply
		if override, ok := m.ApplyTo[id]; ok {
			apply = override
		}
		if apply == nil {
			apply = Replace[T]
		}
		store.Update(id, func(prev any, ok bool) any {
			return apply(prev, ok, value)
		})
	}
}

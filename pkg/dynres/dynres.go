// Package dynres holds the dynamic resource table: admin-authored
// per-node capacity overrides consulted on every registration and
// heartbeat.
package dynres

import (
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Table is a copy-on-write snapshot of per-node capacity overrides.
// Lookups take the read guard against the current snapshot; Update
// replaces the whole snapshot under the write guard and persists it.
type Table struct {
	mu       sync.RWMutex
	snapshot map[types.NodeID]types.Resource
	store    storage.Store
}

// NewTable creates a table backed by the given store, loading any
// persisted overrides. A nil store yields a purely in-memory table.
func NewTable(store storage.Store) (*Table, error) {
	t := &Table{
		snapshot: make(map[types.NodeID]types.Resource),
		store:    store,
	}
	if store != nil {
		entries, err := store.LoadDynamicResources()
		if err != nil {
			return nil, fmt.Errorf("failed to load dynamic resources: %w", err)
		}
		for _, e := range entries {
			t.snapshot[e.NodeID] = e.Resource()
		}
	}
	return t, nil
}

// Lookup returns the override for a node, if any.
func (t *Table) Lookup(id types.NodeID) (types.Resource, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.snapshot[id]
	return r, ok
}

// Update atomically replaces the snapshot and persists the new table.
func (t *Table) Update(entries []types.DynamicResourceEntry) error {
	next := make(map[types.NodeID]types.Resource, len(entries))
	for _, e := range entries {
		next[e.NodeID] = e.Resource()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.store != nil {
		if err := t.store.SaveDynamicResources(entries); err != nil {
			return fmt.Errorf("failed to persist dynamic resources: %w", err)
		}
	}
	t.snapshot = next
	return nil
}

// Entries returns the current table for operator inspection.
func (t *Table) Entries() []types.DynamicResourceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.DynamicResourceEntry, 0, len(t.snapshot))
	for id, r := range t.snapshot {
		out = append(out, types.DynamicResourceEntry{
			NodeID:    id,
			MemoryMiB: r.MemoryMiB,
			VCores:    r.VCores,
		})
	}
	return out
}

// Len returns the number of overrides.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.snapshot)
}

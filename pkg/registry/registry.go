package registry

import (
	"hash/fnv"
	"sync"

	"github.com/cuemby/burrow/pkg/types"
)

const shardCount = 32

// Registry is the concurrent NodeID → NodeRecord mapping: the single
// source of truth for cluster membership. It is sharded so that readers
// of one key never block writers of another; read-modify-write inside a
// record takes the record's own lock, not the shard's.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.RWMutex
	nodes map[types.NodeID]*NodeRecord
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].nodes = make(map[types.NodeID]*NodeRecord)
	}
	return r
}

func (r *Registry) shardFor(id types.NodeID) *shard {
	h := fnv.New32a()
	h.Write([]byte(id.String()))
	return &r.shards[h.Sum32()%shardCount]
}

// Get returns the record for id, or nil if the node is not tracked.
func (r *Registry) Get(id types.NodeID) *NodeRecord {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id]
}

// PutIfAbsent inserts rec when no record exists for its ID. It returns
// the record now in the registry and whether the insert happened; when it
// did not, the returned record is the existing one.
func (r *Registry) PutIfAbsent(rec *NodeRecord) (*NodeRecord, bool) {
	s := r.shardFor(rec.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.nodes[rec.ID]; ok {
		return existing, false
	}
	s.nodes[rec.ID] = rec
	return rec, true
}

// Replace overwrites the entry for rec.ID and returns the previous
// record, or nil if there was none.
func (r *Registry) Replace(rec *NodeRecord) *NodeRecord {
	s := r.shardFor(rec.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.nodes[rec.ID]
	s.nodes[rec.ID] = rec
	return old
}

// Delete removes the entry for id and returns it, or nil if absent.
func (r *Registry) Delete(id types.NodeID) *NodeRecord {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.nodes[id]
	delete(s.nodes, id)
	return old
}

// Len returns the number of tracked nodes.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.nodes)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every record until fn returns false. No iteration
// order is guaranteed; records observed may be mutated concurrently by
// their own handlers.
func (r *Registry) Range(fn func(*NodeRecord) bool) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		records := make([]*NodeRecord, 0, len(s.nodes))
		for _, rec := range s.nodes {
			records = append(records, rec)
		}
		s.mu.RUnlock()

		for _, rec := range records {
			if !fn(rec) {
				return
			}
		}
	}
}

// Summaries snapshots every record for operator listings.
func (r *Registry) Summaries() []types.NodeSummary {
	out := make([]types.NodeSummary, 0, r.Len())
	r.Range(func(rec *NodeRecord) bool {
		out = append(out, rec.Summary())
		return true
	})
	return out
}

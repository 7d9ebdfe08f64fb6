// Package liveness tracks last-ping deadlines for registered nodes and
// expires the ones that go quiet.
package liveness

import (
	"container/heap"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// ExpireFunc is invoked outside the monitor's lock for every node whose
// deadline passed without a ping.
type ExpireFunc func(id types.NodeID)

// Monitor implements the three-verb liveness contract: Register,
// Unregister, ReceivedPing. A background ticker scans a deadline heap and
// hands expired nodes to the ExpireFunc.
type Monitor struct {
	mu      sync.Mutex
	entries map[types.NodeID]*entry
	pq      deadlineHeap

	expiry       time.Duration
	scanInterval time.Duration
	onExpire     ExpireFunc
	logger       zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

type entry struct {
	id       types.NodeID
	deadline time.Time
	index    int // heap index; -1 when removed
}

// NewMonitor creates a monitor expiring nodes that miss pings for the
// given duration, scanning at the given interval.
func NewMonitor(expiry, scanInterval time.Duration, onExpire ExpireFunc, logger zerolog.Logger) *Monitor {
	return &Monitor{
		entries:      make(map[types.NodeID]*entry),
		expiry:       expiry,
		scanInterval: scanInterval,
		onExpire:     onExpire,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the background expiry scan.
func (m *Monitor) Start() {
	go m.run()
}

// Stop halts the background scan. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Register begins tracking a node, giving it a full expiry window.
func (m *Monitor) Register(id types.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(id)
}

// ReceivedPing refreshes a node's deadline. Pings for untracked nodes
// re-register them; the tracker only pings nodes it believes are members.
func (m *Monitor) ReceivedPing(id types.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(id)
}

// Unregister stops tracking a node. Unknown nodes are ignored.
func (m *Monitor) Unregister(id types.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}
	delete(m.entries, id)
	if e.index >= 0 {
		heap.Remove(&m.pq, e.index)
	}
}

// Tracking reports whether a node is currently monitored.
func (m *Monitor) Tracking(id types.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}

func (m *Monitor) touch(id types.NodeID) {
	deadline := time.Now().Add(m.expiry)
	if e, ok := m.entries[id]; ok {
		e.deadline = deadline
		heap.Fix(&m.pq, e.index)
		return
	}
	e := &entry{id: id, deadline: deadline}
	m.entries[id] = e
	heap.Push(&m.pq, e)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, id := range m.collectExpired(time.Now()) {
				m.logger.Warn().Str("node", id.String()).Msg("Node missed its liveness deadline")
				m.onExpire(id)
			}
		case <-m.stopCh:
			return
		}
	}
}

// collectExpired pops every entry past now. The callback runs outside the
// lock so expiry handling can re-enter the monitor.
func (m *Monitor) collectExpired(now time.Time) []types.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []types.NodeID
	for m.pq.Len() > 0 {
		head := m.pq[0]
		if head.deadline.After(now) {
			break
		}
		heap.Pop(&m.pq)
		delete(m.entries, head.id)
		expired = append(expired, head.id)
	}
	return expired
}

// deadlineHeap is a min-heap ordered by deadline.
type deadlineHeap []*entry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

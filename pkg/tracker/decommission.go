package tracker

import (
	"sync"

	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/types"
)

// DecommissionWatcher observes heartbeats of draining nodes and decides
// when they have nothing of interest left running. "Of interest" is
// policy: containers always count; running applications count only when
// waitForApps is set.
type DecommissionWatcher struct {
	mu          sync.Mutex
	drains      map[types.NodeID]drainState
	waitForApps bool
}

type drainState struct {
	runningContainers int
	runningApps       int
}

// NewDecommissionWatcher creates a watcher with the given drain policy.
func NewDecommissionWatcher(waitForApps bool) *DecommissionWatcher {
	return &DecommissionWatcher{
		drains:      make(map[types.NodeID]drainState),
		waitForApps: waitForApps,
	}
}

// Update feeds one heartbeat's status into the watcher. Caller holds the
// record lock.
func (w *DecommissionWatcher) Update(rec *registry.NodeRecord, status types.NodeStatus) {
	running := 0
	for _, c := range status.Containers {
		if c.State != types.ContainerStateComplete {
			running++
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.drains[rec.ID] = drainState{
		runningContainers: running,
		runningApps:       rec.RunningApps.Size(),
	}
}

// ReadyToBeDecommissioned reports whether a draining node has fully
// drained. A node never observed by Update is not ready.
func (w *DecommissionWatcher) ReadyToBeDecommissioned(id types.NodeID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.drains[id]
	if !ok {
		return false
	}
	if st.runningContainers > 0 {
		return false
	}
	if w.waitForApps && st.runningApps > 0 {
		return false
	}
	return true
}

// Forget drops the watcher's state for a node that left the registry.
func (w *DecommissionWatcher) Forget(id types.NodeID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.drains, id)
}

package registry

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/hashicorp/go-set/v3"
)

// ResponseIDMask bounds the heartbeat response counter to 31 bits; the
// counter advances as (x+1) & ResponseIDMask.
const ResponseIDMask uint32 = 0x7fffffff

// NextResponseID advances a response counter by one with wrap-around.
func NextResponseID(x uint32) uint32 {
	return (x + 1) & ResponseIDMask
}

// NodeRecord is one registry entry. All mutable fields are guarded by the
// record's own lock, held briefly by the handler mutating it; two
// concurrent heartbeats for the same node serialize here.
type NodeRecord struct {
	mu sync.Mutex

	ID        types.NodeID
	HTTPPort  int
	RackPath  string
	NMVersion string

	TotalCapability      types.Resource
	PhysicalCapability   types.Resource
	CapabilityOverridden bool

	State types.NodeState

	LastResponseID           uint32
	LastResponse             *types.HeartbeatResponse
	LastPingAt               time.Time
	UpdatedCapabilityPending bool

	RunningApps *set.Set[string]

	// QueuedContainerUpdates mirrors the agent-reported pacing signal
	// from the most recent status.
	QueuedContainerUpdates int
}

// NewNodeRecord builds a record in the NEW state with its app set
// initialized.
func NewNodeRecord(id types.NodeID, httpPort int, rackPath, nmVersion string, capability, physical types.Resource, runningApps []string) *NodeRecord {
	apps := set.New[string](len(runningApps))
	for _, app := range runningApps {
		apps.Insert(app)
	}
	return &NodeRecord{
		ID:                 id,
		HTTPPort:           httpPort,
		RackPath:           rackPath,
		NMVersion:          nmVersion,
		TotalCapability:    capability,
		PhysicalCapability: physical,
		State:              types.NodeStateNew,
		LastPingAt:         time.Now(),
		RunningApps:        apps,
	}
}

// Lock takes the record's mutation lock.
func (r *NodeRecord) Lock() { r.mu.Lock() }

// Unlock releases the record's mutation lock.
func (r *NodeRecord) Unlock() { r.mu.Unlock() }

// Summary snapshots the record for operator listings. Caller must not
// hold the record lock.
func (r *NodeRecord) Summary() types.NodeSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return types.NodeSummary{
		NodeID:               r.ID,
		HTTPPort:             r.HTTPPort,
		RackPath:             r.RackPath,
		NMVersion:            r.NMVersion,
		State:                r.State,
		TotalCapability:      r.TotalCapability,
		PhysicalCapability:   r.PhysicalCapability,
		CapabilityOverridden: r.CapabilityOverridden,
		LastPingAt:           r.LastPingAt,
		RunningApplications:  r.RunningApps.Slice(),
	}
}

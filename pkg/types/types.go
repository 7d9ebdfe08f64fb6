package types

import (
	"net"
	"strconv"
	"time"
)

// NodeID identifies a node agent by host and RPC port.
type NodeID struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String renders the ID as "host:port".
func (id NodeID) String() string {
	return net.JoinHostPort(id.Host, strconv.Itoa(id.Port))
}

// ParseNodeID parses a "host:port" string into a NodeID.
func ParseNodeID(s string) (NodeID, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return NodeID{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return NodeID{}, err
	}
	return NodeID{Host: host, Port: port}, nil
}

// Resource is a node capacity: memory in MiB plus virtual cores, with
// optional extended resources (GPUs, FPGAs, ...).
type Resource struct {
	MemoryMiB int64            `json:"memory_mib"`
	VCores    int              `json:"vcores"`
	Extended  map[string]int64 `json:"extended,omitempty"`
}

// Equal reports whether two resources describe the same capacity.
func (r Resource) Equal(o Resource) bool {
	if r.MemoryMiB != o.MemoryMiB || r.VCores != o.VCores {
		return false
	}
	if len(r.Extended) != len(o.Extended) {
		return false
	}
	for k, v := range r.Extended {
		if ov, ok := o.Extended[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Meets reports whether the resource satisfies the given floors.
func (r Resource) Meets(minMemoryMiB int64, minVCores int) bool {
	return r.MemoryMiB >= minMemoryMiB && r.VCores >= minVCores
}

// NodeState represents the lifecycle state of a tracked node.
type NodeState string

const (
	NodeStateNew             NodeState = "new"
	NodeStateRunning         NodeState = "running"
	NodeStateUnhealthy       NodeState = "unhealthy"
	NodeStateDecommissioning NodeState = "decommissioning"
	NodeStateDecommissioned  NodeState = "decommissioned"
	NodeStateLost            NodeState = "lost"
	NodeStateRebooted        NodeState = "rebooted"
	NodeStateShutdown        NodeState = "shutdown"
)

// Terminal reports whether the state is final. A record in a terminal
// state is removed from the registry before a node with the same ID can
// register again.
func (s NodeState) Terminal() bool {
	switch s {
	case NodeStateDecommissioned, NodeStateLost, NodeStateShutdown:
		return true
	}
	return false
}

// Action is the control directive returned to a node agent. It is the
// agent's sole control channel.
type Action string

const (
	ActionNormal   Action = "NORMAL"
	ActionShutdown Action = "SHUTDOWN"
	ActionResync   Action = "RESYNC"
)

// ContainerState is the reported state of a container on a node.
type ContainerState string

const (
	ContainerStateNew      ContainerState = "new"
	ContainerStateRunning  ContainerState = "running"
	ContainerStateComplete ContainerState = "complete"
)

// ContainerStatus is the per-container status carried by registrations
// and heartbeats.
type ContainerStatus struct {
	ContainerID  string         `json:"container_id"`
	AppAttemptID string         `json:"app_attempt_id"`
	State        ContainerState `json:"state"`
	ExitStatus   int            `json:"exit_status"`
	Diagnostics  string         `json:"diagnostics,omitempty"`
}

// NodeHealth is the agent's own health verdict.
type NodeHealth struct {
	Healthy        bool      `json:"healthy"`
	Report         string    `json:"report,omitempty"`
	LastReportedAt time.Time `json:"last_reported_at"`
}

// NodeStatus is the per-heartbeat status payload. QueuedContainerUpdates
// is the agent-side count of container status updates not yet
// acknowledged; the pacing controller reads it as its speed-up signal.
type NodeStatus struct {
	NodeID                 NodeID            `json:"node_id"`
	ResponseID             uint32            `json:"response_id"`
	Containers             []ContainerStatus `json:"containers,omitempty"`
	Health                 NodeHealth        `json:"health"`
	QueuedContainerUpdates int               `json:"queued_container_updates"`
}

// MasterKey is an opaque rotating secret shipped to agents. The tracker
// never inspects the material.
type MasterKey struct {
	KeyID    int64  `json:"key_id"`
	Material []byte `json:"material"`
}

// NodeAttribute is a typed node tag replicated from the agent.
type NodeAttribute struct {
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Value  string `json:"value"`
}

// Key returns the canonical identity of the attribute within a prefix.
func (a NodeAttribute) Key() string {
	return a.Prefix + "/" + a.Name
}

// AttributePrefixDistributed is the only prefix node agents may author.
// Batches carrying any other prefix are rejected whole.
const AttributePrefixDistributed = "node.agent"

// CollectorInfo describes a per-application timeline collector. Epoch and
// Version form the happens-before stamp; both zero means unstamped.
type CollectorInfo struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
	Epoch   int64  `json:"epoch"`
	Version int64  `json:"version"`
}

// Stamped reports whether the collector already carries an ordering stamp.
func (c CollectorInfo) Stamped() bool {
	return c.Epoch != 0 || c.Version != 0
}

// Precedes is the happens-before predicate used for collector
// compare-and-set: the receiver precedes o when its stamp is older.
func (c CollectorInfo) Precedes(o CollectorInfo) bool {
	if c.Epoch != o.Epoch {
		return c.Epoch < o.Epoch
	}
	return c.Version < o.Version
}

// LogAggregationReport carries a node's log-aggregation status for one
// application.
type LogAggregationReport struct {
	AppID       string `json:"app_id"`
	NodeID      NodeID `json:"node_id"`
	Status      string `json:"status"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// ContainerQueuingLimit caps opportunistic container queuing on a node.
type ContainerQueuingLimit struct {
	MaxQueuedContainers int           `json:"max_queued_containers"`
	MaxQueueWaitTime    time.Duration `json:"max_queue_wait_time"`
}

// RegisterRequest is sent once by a node agent when it starts.
type RegisterRequest struct {
	NodeID                NodeID                 `json:"node_id"`
	HTTPPort              int                    `json:"http_port"`
	Capability            Resource               `json:"capability"`
	PhysicalCapability    Resource               `json:"physical_capability"`
	NMVersion             string                 `json:"nm_version"`
	NodeStatus            *NodeStatus            `json:"node_status,omitempty"`
	ContainerStatuses     []ContainerStatus      `json:"container_statuses,omitempty"`
	RunningApplications   []string               `json:"running_applications,omitempty"`
	NodeLabels            *[]string              `json:"node_labels,omitempty"`
	NodeAttributes        []NodeAttribute        `json:"node_attributes,omitempty"`
	LogAggregationReports []LogAggregationReport `json:"log_aggregation_reports,omitempty"`
}

// RegisterResponse answers a registration attempt.
type RegisterResponse struct {
	Action                  Action     `json:"action"`
	Diagnostics             string     `json:"diagnostics,omitempty"`
	ContainerTokenMasterKey *MasterKey `json:"container_token_master_key,omitempty"`
	NMTokenMasterKey        *MasterKey `json:"nm_token_master_key,omitempty"`
	Resource                *Resource  `json:"resource,omitempty"`
	RMIdentifier            int64      `json:"rm_identifier"`
	RMVersion               string     `json:"rm_version"`
	NodeLabelsAccepted      bool       `json:"are_node_labels_accepted"`
	NodeAttributesAccepted  bool       `json:"are_node_attributes_accepted"`
}

// HeartbeatRequest is sent by a node agent on the interval dictated by the
// previous response. NodeLabels is nil when the agent is not reporting
// labels this beat.
type HeartbeatRequest struct {
	NodeStatus                   NodeStatus               `json:"node_status"`
	NodeLabels                   *[]string                `json:"node_labels,omitempty"`
	NodeAttributes               []NodeAttribute          `json:"node_attributes,omitempty"`
	RegisteringCollectors        map[string]CollectorInfo `json:"registering_collectors,omitempty"`
	LastKnownContainerTokenKeyID int64                    `json:"last_known_container_token_key_id"`
	LastKnownNMTokenKeyID        int64                    `json:"last_known_nm_token_key_id"`
	TokenSequenceNo              int64                    `json:"token_sequence_no"`
	LogAggregationReports        []LogAggregationReport   `json:"log_aggregation_reports,omitempty"`
}

// HeartbeatResponse answers one heartbeat. ResponseID advances by exactly
// one (modulo the 31-bit wrap) on every accepted beat.
type HeartbeatResponse struct {
	ResponseID              uint32                   `json:"response_id"`
	Action                  Action                   `json:"action"`
	Diagnostics             string                   `json:"diagnostics,omitempty"`
	ContainerTokenMasterKey *MasterKey               `json:"container_token_master_key,omitempty"`
	NMTokenMasterKey        *MasterKey               `json:"nm_token_master_key,omitempty"`
	Resource                *Resource                `json:"resource,omitempty"`
	NextHeartbeatInterval   time.Duration            `json:"next_heartbeat_interval"`
	ContainerQueuingLimit   *ContainerQueuingLimit   `json:"container_queuing_limit,omitempty"`
	AppCollectors           map[string]CollectorInfo `json:"app_collectors,omitempty"`
	SystemCredentials       map[string][]byte        `json:"system_credentials,omitempty"`
	TokenSequenceNo         int64                    `json:"token_sequence_no"`
	NodeLabelsAccepted      bool                     `json:"are_node_labels_accepted"`
	NodeAttributesAccepted  bool                     `json:"are_node_attributes_accepted"`
}

// UnregisterRequest is sent on clean agent shutdown.
type UnregisterRequest struct {
	NodeID NodeID `json:"node_id"`
}

// UnregisterResponse is intentionally empty; unregistration is idempotent.
type UnregisterResponse struct{}

// DynamicResourceEntry is one per-node capacity override in the dynamic
// resource table.
type DynamicResourceEntry struct {
	NodeID    NodeID `json:"node_id"`
	MemoryMiB int64  `json:"memory_mib"`
	VCores    int    `json:"vcores"`
}

// Resource converts the entry into a Resource value.
func (e DynamicResourceEntry) Resource() Resource {
	return Resource{MemoryMiB: e.MemoryMiB, VCores: e.VCores}
}

// NodeSummary is the operator-facing snapshot of one registry entry.
type NodeSummary struct {
	NodeID               NodeID    `json:"node_id"`
	HTTPPort             int       `json:"http_port"`
	RackPath             string    `json:"rack_path"`
	NMVersion            string    `json:"nm_version"`
	State                NodeState `json:"state"`
	TotalCapability      Resource  `json:"total_capability"`
	PhysicalCapability   Resource  `json:"physical_capability"`
	CapabilityOverridden bool      `json:"capability_overridden"`
	LastPingAt           time.Time `json:"last_ping_at"`
	RunningApplications  []string  `json:"running_applications,omitempty"`
}

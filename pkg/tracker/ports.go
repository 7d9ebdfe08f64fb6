package tracker

import (
	"net"
	"sync"

	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/secrets"
	"github.com/cuemby/burrow/pkg/types"
)

// NodeLabelManager accepts authoritative label replacements for nodes.
type NodeLabelManager interface {
	ReplaceLabelsOnNode(labels map[types.NodeID][]string) error
}

// DelegatedLabelsUpdater refreshes centrally-managed labels for one node.
type DelegatedLabelsUpdater interface {
	UpdateNodeLabels(id types.NodeID) error
}

// NodeAttributesManager stores per-host node attributes by prefix.
type NodeAttributesManager interface {
	AttributesForNode(host string) []types.NodeAttribute
	ReplaceNodeAttributes(prefix string, byHost map[string][]types.NodeAttribute) error
}

// ContainerTokenKeys exposes the container-token master key slots.
type ContainerTokenKeys interface {
	CurrentKey() *types.MasterKey
	NextKey() *types.MasterKey
}

// NMTokenKeys exposes the node-manager-token master key slots plus the
// per-node key cache eviction used on re-registration.
type NMTokenKeys interface {
	CurrentKey() *types.MasterKey
	NextKey() *types.MasterKey
	RemoveNodeKey(id types.NodeID)
}

// RackResolver maps a host to its rack path.
type RackResolver interface {
	Resolve(host string) string
}

// HostResolver answers whether a declared host resolves to an address
// under the resource manager's view.
type HostResolver interface {
	LookupIP(host string) ([]net.IP, error)
}

// NodesList is the admission-list view consulted on register and on
// every heartbeat.
type NodesList interface {
	IsValid(host string) bool
	IsGracefullyDecommissionable(rec *registry.NodeRecord) bool
}

// ApplicationIndex locates the application-master container of an app
// attempt, used to synthesize ContainerFinished events when
// work-preserving recovery is off.
type ApplicationIndex interface {
	MasterContainer(appAttemptID string) (string, bool)
}

// QueuingLimitCalculator produces the opportunistic-container queuing
// limit attached to heartbeat responses when installed.
type QueuingLimitCalculator interface {
	Limit() types.ContainerQueuingLimit
}

// containerKeysAdapter narrows a secrets.Manager to the container-token
// key slots.
type containerKeysAdapter struct {
	m *secrets.Manager
}

func (a containerKeysAdapter) CurrentKey() *types.MasterKey {
	return a.m.CurrentKey(secrets.KeyKindContainerToken)
}

func (a containerKeysAdapter) NextKey() *types.MasterKey {
	return a.m.NextKey(secrets.KeyKindContainerToken)
}

// NewContainerTokenKeys adapts a secrets manager to ContainerTokenKeys.
func NewContainerTokenKeys(m *secrets.Manager) ContainerTokenKeys {
	return containerKeysAdapter{m: m}
}

type nmKeysAdapter struct {
	m *secrets.Manager
}

func (a nmKeysAdapter) CurrentKey() *types.MasterKey {
	return a.m.CurrentKey(secrets.KeyKindNMToken)
}

func (a nmKeysAdapter) NextKey() *types.MasterKey {
	return a.m.NextKey(secrets.KeyKindNMToken)
}

func (a nmKeysAdapter) RemoveNodeKey(id types.NodeID) {
	a.m.RemoveNodeKey(id)
}

// NewNMTokenKeys adapts a secrets manager to NMTokenKeys.
func NewNMTokenKeys(m *secrets.Manager) NMTokenKeys {
	return nmKeysAdapter{m: m}
}

// MemoryLabelManager is an in-process NodeLabelManager.
type MemoryLabelManager struct {
	mu     sync.Mutex
	byNode map[types.NodeID][]string
}

// NewMemoryLabelManager creates an empty label manager.
func NewMemoryLabelManager() *MemoryLabelManager {
	return &MemoryLabelManager{byNode: make(map[types.NodeID][]string)}
}

// ReplaceLabelsOnNode stores the given labels verbatim.
func (m *MemoryLabelManager) ReplaceLabelsOnNode(labels map[types.NodeID][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ls := range labels {
		m.byNode[id] = ls
	}
	return nil
}

// LabelsOnNode returns the stored labels for a node.
func (m *MemoryLabelManager) LabelsOnNode(id types.NodeID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byNode[id]
}

// MemoryAttributeManager is an in-process NodeAttributesManager.
type MemoryAttributeManager struct {
	mu     sync.Mutex
	byHost map[string][]types.NodeAttribute
}

// NewMemoryAttributeManager creates an empty attribute manager.
func NewMemoryAttributeManager() *MemoryAttributeManager {
	return &MemoryAttributeManager{byHost: make(map[string][]types.NodeAttribute)}
}

// AttributesForNode returns the stored attributes for a host.
func (m *MemoryAttributeManager) AttributesForNode(host string) []types.NodeAttribute {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byHost[host]
}

// ReplaceNodeAttributes replaces each host's attributes under the given
// prefix, keeping attributes of other prefixes untouched.
func (m *MemoryAttributeManager) ReplaceNodeAttributes(prefix string, byHost map[string][]types.NodeAttribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for host, attrs := range byHost {
		var kept []types.NodeAttribute
		for _, a := range m.byHost[host] {
			if a.Prefix != prefix {
				kept = append(kept, a)
			}
		}
		m.byHost[host] = append(kept, attrs...)
	}
	return nil
}

// StaticRackResolver resolves every host to a fixed rack path.
type StaticRackResolver struct {
	Path string
}

// Resolve returns the configured rack path.
func (r StaticRackResolver) Resolve(host string) string {
	if r.Path == "" {
		return "/default-rack"
	}
	return r.Path
}

// DNSHostResolver resolves hosts through the standard resolver.
type DNSHostResolver struct{}

// LookupIP resolves the host to its addresses.
func (DNSHostResolver) LookupIP(host string) ([]net.IP, error) {
	return net.LookupIP(host)
}

// MemoryApplicationIndex is an in-process ApplicationIndex.
type MemoryApplicationIndex struct {
	mu       sync.Mutex
	byAttempt map[string]string
}

// NewMemoryApplicationIndex creates an empty application index.
func NewMemoryApplicationIndex() *MemoryApplicationIndex {
	return &MemoryApplicationIndex{byAttempt: make(map[string]string)}
}

// SetMasterContainer records the master container for an app attempt.
func (m *MemoryApplicationIndex) SetMasterContainer(appAttemptID, containerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byAttempt[appAttemptID] = containerID
}

// MasterContainer returns the master container for an app attempt.
func (m *MemoryApplicationIndex) MasterContainer(appAttemptID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byAttempt[appAttemptID]
	return id, ok
}

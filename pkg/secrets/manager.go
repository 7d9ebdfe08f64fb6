package secrets

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	gocache "github.com/patrickmn/go-cache"
)

// KeyKind names one of the two rotating master-key families.
type KeyKind string

const (
	KeyKindContainerToken KeyKind = "container-token"
	KeyKindNMToken        KeyKind = "nm-token"
)

// Manager owns the current/next slots for both master-key families.
// Rotation is driven externally: RollNext mints the next key, agents pick
// it up over heartbeats, and ActivateNext promotes it once the fleet has
// converged.
type Manager struct {
	mu      sync.RWMutex
	store   KeyStore
	current map[KeyKind]*types.MasterKey
	next    map[KeyKind]*types.MasterKey

	// nodeKeys caches the nm-token key id each node last acknowledged.
	nodeKeys *gocache.Cache
}

// NewManager creates a manager with a current key minted for both kinds.
func NewManager(store KeyStore, nodeKeyTTL time.Duration) (*Manager, error) {
	m := &Manager{
		store:    store,
		current:  make(map[KeyKind]*types.MasterKey),
		next:     make(map[KeyKind]*types.MasterKey),
		nodeKeys: gocache.New(nodeKeyTTL, nodeKeyTTL),
	}
	for _, kind := range []KeyKind{KeyKindContainerToken, KeyKindNMToken} {
		key, err := store.RollVersion(currentName(kind))
		if err != nil {
			return nil, fmt.Errorf("failed to mint %s key: %w", kind, err)
		}
		m.current[kind] = key
	}
	return m, nil
}

func currentName(kind KeyKind) string { return string(kind) + "/current" }
func nextName(kind KeyKind) string    { return string(kind) + "/next" }

// CurrentKey returns the active key for a kind.
func (m *Manager) CurrentKey(kind KeyKind) *types.MasterKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current[kind]
}

// NextKey returns the staged key for a kind, or nil when rotation is not
// in progress.
func (m *Manager) NextKey(kind KeyKind) *types.MasterKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.next[kind]
}

// RollNext mints and stages the next key for a kind.
func (m *Manager) RollNext(kind KeyKind) (*types.MasterKey, error) {
	key, err := m.store.RollVersion(nextName(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to roll %s key: %w", kind, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next[kind] = key
	return key, nil
}

// ActivateNext promotes the staged key to current. It is an error when no
// rotation is in progress.
func (m *Manager) ActivateNext(kind KeyKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := m.next[kind]
	if !ok || next == nil {
		return fmt.Errorf("no next %s key staged", kind)
	}
	if err := m.store.Put(currentName(kind), next); err != nil {
		return err
	}
	if err := m.store.Delete(nextName(kind)); err != nil {
		return err
	}
	m.current[kind] = next
	delete(m.next, kind)
	return nil
}

// RecordNodeKey caches the nm-token key id a node last acknowledged.
func (m *Manager) RecordNodeKey(id types.NodeID, keyID int64) {
	m.nodeKeys.SetDefault(id.String(), keyID)
}

// NodeKey returns the cached nm-token key id for a node.
func (m *Manager) NodeKey(id types.NodeID) (int64, bool) {
	v, ok := m.nodeKeys.Get(id.String())
	if !ok {
		return 0, false
	}
	return v.(int64), true
}

// RemoveNodeKey clears the cached nm-token key entry for a node; called
// whenever the node re-registers.
func (m *Manager) RemoveNodeKey(id types.NodeID) {
	m.nodeKeys.Delete(id.String())
}

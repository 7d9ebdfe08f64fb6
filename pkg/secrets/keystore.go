package secrets

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/burrow/pkg/types"
)

// KeyStore is the capability set for master-key material: get, put, list,
// delete, and roll-version. The tracker never inspects key bytes; it only
// ships them to agents.
type KeyStore interface {
	Get(name string) (*types.MasterKey, error)
	Put(name string, key *types.MasterKey) error
	List() ([]string, error)
	Delete(name string) error
	RollVersion(name string) (*types.MasterKey, error)
}

// MemoryKeyStore is an in-process KeyStore minting random 32-byte keys
// with process-monotonic key IDs.
type MemoryKeyStore struct {
	mu     sync.Mutex
	keys   map[string]*types.MasterKey
	nextID int64
}

// NewMemoryKeyStore creates an empty in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]*types.MasterKey)}
}

// Get returns the key stored under name.
func (s *MemoryKeyStore) Get(name string) (*types.MasterKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[name]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", name)
	}
	return key, nil
}

// Put stores a key under name, replacing any existing one.
func (s *MemoryKeyStore) Put(name string, key *types.MasterKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[name] = key
	return nil
}

// List returns the stored key names in sorted order.
func (s *MemoryKeyStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.keys))
	for name := range s.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the key stored under name. Unknown names are ignored.
func (s *MemoryKeyStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, name)
	return nil
}

// RollVersion mints a fresh key under name and returns it.
func (s *MemoryKeyStore) RollVersion(name string) (*types.MasterKey, error) {
	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	key := &types.MasterKey{KeyID: s.nextID, Material: material}
	s.keys[name] = key
	return key, nil
}

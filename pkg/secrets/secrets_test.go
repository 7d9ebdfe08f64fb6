package secrets

import (
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKeyStoreRollVersion(t *testing.T) {
	s := NewMemoryKeyStore()

	k1, err := s.RollVersion("container-token/current")
	require.NoError(t, err)
	assert.Equal(t, int64(1), k1.KeyID)
	assert.Len(t, k1.Material, 32)

	k2, err := s.RollVersion("container-token/current")
	require.NoError(t, err)
	assert.Equal(t, int64(2), k2.KeyID)
	assert.NotEqual(t, k1.Material, k2.Material)

	got, err := s.Get("container-token/current")
	require.NoError(t, err)
	assert.Equal(t, k2, got)
}

func TestMemoryKeyStoreCRUD(t *testing.T) {
	s := NewMemoryKeyStore()

	_, err := s.Get("missing")
	assert.Error(t, err)

	require.NoError(t, s.Put("a", &types.MasterKey{KeyID: 7}))
	require.NoError(t, s.Put("b", &types.MasterKey{KeyID: 8}))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, s.Delete("a"))
	_, err = s.Get("a")
	assert.Error(t, err)
}

func TestManagerMintsCurrentKeys(t *testing.T) {
	m, err := NewManager(NewMemoryKeyStore(), time.Hour)
	require.NoError(t, err)

	container := m.CurrentKey(KeyKindContainerToken)
	nm := m.CurrentKey(KeyKindNMToken)
	require.NotNil(t, container)
	require.NotNil(t, nm)
	assert.NotEqual(t, container.KeyID, nm.KeyID)
	assert.Nil(t, m.NextKey(KeyKindContainerToken))
}

func TestManagerRotation(t *testing.T) {
	m, err := NewManager(NewMemoryKeyStore(), time.Hour)
	require.NoError(t, err)

	// Activating without a staged key fails.
	assert.Error(t, m.ActivateNext(KeyKindContainerToken))

	staged, err := m.RollNext(KeyKindContainerToken)
	require.NoError(t, err)
	assert.Equal(t, staged, m.NextKey(KeyKindContainerToken))

	before := m.CurrentKey(KeyKindContainerToken)
	require.NoError(t, m.ActivateNext(KeyKindContainerToken))
	assert.Equal(t, staged.KeyID, m.CurrentKey(KeyKindContainerToken).KeyID)
	assert.NotEqual(t, before.KeyID, m.CurrentKey(KeyKindContainerToken).KeyID)
	assert.Nil(t, m.NextKey(KeyKindContainerToken))

	// The nm-token family is untouched by container-token rotation.
	assert.Nil(t, m.NextKey(KeyKindNMToken))
}

func TestNodeKeyCache(t *testing.T) {
	m, err := NewManager(NewMemoryKeyStore(), time.Hour)
	require.NoError(t, err)

	id := types.NodeID{Host: "h1", Port: 8041}
	_, ok := m.NodeKey(id)
	assert.False(t, ok)

	m.RecordNodeKey(id, 42)
	got, ok := m.NodeKey(id)
	require.True(t, ok)
	assert.Equal(t, int64(42), got)

	m.RemoveNodeKey(id)
	_, ok = m.NodeKey(id)
	assert.False(t, ok)
}

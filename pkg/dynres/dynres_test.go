package dynres

import (
	"testing"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupAndUpdateInMemory(t *testing.T) {
	table, err := NewTable(nil)
	require.NoError(t, err)

	id := types.NodeID{Host: "h1", Port: 8041}
	_, ok := table.Lookup(id)
	assert.False(t, ok)

	require.NoError(t, table.Update([]types.DynamicResourceEntry{
		{NodeID: id, MemoryMiB: 16384, VCores: 8},
	}))

	r, ok := table.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, types.Resource{MemoryMiB: 16384, VCores: 8}, r)
	assert.Equal(t, 1, table.Len())

	// Update replaces the whole snapshot.
	require.NoError(t, table.Update([]types.DynamicResourceEntry{
		{NodeID: types.NodeID{Host: "h2", Port: 8041}, MemoryMiB: 4096, VCores: 2},
	}))
	_, ok = table.Lookup(id)
	assert.False(t, ok)
	assert.Len(t, table.Entries(), 1)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)

	table, err := NewTable(store)
	require.NoError(t, err)

	id := types.NodeID{Host: "h1", Port: 8041}
	require.NoError(t, table.Update([]types.DynamicResourceEntry{
		{NodeID: id, MemoryMiB: 16384, VCores: 8},
	}))
	require.NoError(t, store.Close())

	reopened, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	restored, err := NewTable(reopened)
	require.NoError(t, err)
	r, ok := restored.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, int64(16384), r.MemoryMiB)
}

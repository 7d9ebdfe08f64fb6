package tracker

import (
	"errors"
	"sync"
	"testing"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAttributeManager wraps the memory manager and counts replace
// calls.
type countingAttributeManager struct {
	*MemoryAttributeManager
	mu       sync.Mutex
	replaces int
}

func (m *countingAttributeManager) ReplaceNodeAttributes(prefix string, byHost map[string][]types.NodeAttribute) error {
	m.mu.Lock()
	m.replaces++
	m.mu.Unlock()
	return m.MemoryAttributeManager.ReplaceNodeAttributes(prefix, byHost)
}

type failingLabelManager struct{}

func (failingLabelManager) ReplaceLabelsOnNode(map[types.NodeID][]string) error {
	return errors.New("label store unavailable")
}

func distributedAttr(name, value string) types.NodeAttribute {
	return types.NodeAttribute{
		Prefix: types.AttributePrefixDistributed,
		Name:   name,
		Type:   "string",
		Value:  value,
	}
}

func TestDistributedLabelsAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	id := types.NodeID{Host: "h1", Port: 8041}

	req := registerReq("h1", 8041)
	labels := []string{"gpu", "ssd"}
	req.NodeLabels = &labels
	resp, err := env.svc.Register(req, "")
	require.NoError(t, err)
	assert.True(t, resp.NodeLabelsAccepted)

	stored := env.svc.labels.(*MemoryLabelManager).LabelsOnNode(id)
	assert.ElementsMatch(t, []string{"gpu", "ssd"}, stored)
}

func TestLabelFailureDowngradesToDiagnostics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.labels = failingLabelManager{}
	id := types.NodeID{Host: "h1", Port: 8041}

	_, err := env.svc.Register(registerReq("h1", 8041), "")
	require.NoError(t, err)

	labels := []string{"gpu"}
	hb := heartbeatReq(id, 0)
	hb.NodeLabels = &labels
	resp, err := env.svc.Heartbeat(hb, "")
	require.NoError(t, err)

	// The heartbeat itself succeeds; the failure is a diagnostic.
	assert.Equal(t, types.ActionNormal, resp.Action)
	assert.False(t, resp.NodeLabelsAccepted)
	assert.Contains(t, resp.Diagnostics, "label store unavailable")
}

func TestLabelsNotReportedNotPropagated(t *testing.T) {
	env := newTestEnv(t, nil)
	id := types.NodeID{Host: "h1", Port: 8041}

	_, err := env.svc.Register(registerReq("h1", 8041), "")
	require.NoError(t, err)

	resp, err := env.svc.Heartbeat(heartbeatReq(id, 0), "")
	require.NoError(t, err)
	assert.False(t, resp.NodeLabelsAccepted)
	assert.Empty(t, resp.Diagnostics)
}

func TestAttributeReplaceIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	counting := &countingAttributeManager{MemoryAttributeManager: NewMemoryAttributeManager()}
	env.svc.attrs = counting
	id := types.NodeID{Host: "h1", Port: 8041}

	_, err := env.svc.Register(registerReq("h1", 8041), "")
	require.NoError(t, err)

	attrs := []types.NodeAttribute{
		distributedAttr("os", "linux"),
		distributedAttr("arch", "amd64"),
	}

	hb := heartbeatReq(id, 0)
	hb.NodeAttributes = attrs
	resp, err := env.svc.Heartbeat(hb, "")
	require.NoError(t, err)
	assert.True(t, resp.NodeAttributesAccepted)
	assert.Equal(t, 1, counting.replaces)

	// Same set again, different order: no second manager call.
	hb = heartbeatReq(id, 1)
	hb.NodeAttributes = []types.NodeAttribute{attrs[1], attrs[0]}
	resp, err = env.svc.Heartbeat(hb, "")
	require.NoError(t, err)
	assert.True(t, resp.NodeAttributesAccepted)
	assert.Equal(t, 1, counting.replaces)

	// A changed value does replace.
	hb = heartbeatReq(id, 2)
	hb.NodeAttributes = []types.NodeAttribute{
		distributedAttr("os", "linux"),
		distributedAttr("arch", "arm64"),
	}
	_, err = env.svc.Heartbeat(hb, "")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.replaces)
}

func TestForeignPrefixRejectsWholeBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	counting := &countingAttributeManager{MemoryAttributeManager: NewMemoryAttributeManager()}
	env.svc.attrs = counting
	id := types.NodeID{Host: "h1", Port: 8041}

	_, err := env.svc.Register(registerReq("h1", 8041), "")
	require.NoError(t, err)

	hb := heartbeatReq(id, 0)
	hb.NodeAttributes = []types.NodeAttribute{
		distributedAttr("os", "linux"),
		{Prefix: "central", Name: "zone", Type: "string", Value: "a"},
	}
	resp, err := env.svc.Heartbeat(hb, "")
	require.NoError(t, err)
	assert.False(t, resp.NodeAttributesAccepted)
	assert.Contains(t, resp.Diagnostics, "central")
	assert.Zero(t, counting.replaces)
}

func TestDelegatedCentralizedMode(t *testing.T) {
	var updated []types.NodeID
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.LabelMode = config.LabelModeDelegatedCentralized
	})
	env.svc.delegated = delegatedFunc(func(id types.NodeID) error {
		updated = append(updated, id)
		return nil
	})
	id := types.NodeID{Host: "h1", Port: 8041}

	labels := []string{"gpu"}
	req := registerReq("h1", 8041)
	req.NodeLabels = &labels
	resp, err := env.svc.Register(req, "")
	require.NoError(t, err)

	// No direct write: the delegated updater is asked to refresh instead.
	assert.False(t, resp.NodeLabelsAccepted)
	assert.Equal(t, []types.NodeID{id}, updated)
	assert.Empty(t, env.svc.labels.(*MemoryLabelManager).LabelsOnNode(id))
}

type delegatedFunc func(types.NodeID) error

func (f delegatedFunc) UpdateNodeLabels(id types.NodeID) error { return f(id) }

func TestAttributeSetsEqual(t *testing.T) {
	a := distributedAttr("os", "linux")
	b := distributedAttr("arch", "amd64")
	foreign := types.NodeAttribute{Prefix: "central", Name: "zone", Type: "string", Value: "a"}

	tests := []struct {
		name     string
		incoming []types.NodeAttribute
		stored   []types.NodeAttribute
		expected bool
	}{
		{name: "both empty", expected: true},
		{name: "same set different order", incoming: []types.NodeAttribute{a, b}, stored: []types.NodeAttribute{b, a}, expected: true},
		{name: "stored foreign prefixes ignored", incoming: []types.NodeAttribute{a}, stored: []types.NodeAttribute{a, foreign}, expected: true},
		{name: "different values differ", incoming: []types.NodeAttribute{a}, stored: []types.NodeAttribute{distributedAttr("os", "windows")}, expected: false},
		{name: "subset differs", incoming: []types.NodeAttribute{a}, stored: []types.NodeAttribute{a, b}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, attributeSetsEqual(tt.incoming, tt.stored))
		})
	}
}

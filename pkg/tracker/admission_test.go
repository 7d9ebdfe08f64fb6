package tracker

import (
	"errors"
	"net"
	"testing"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHostResolver struct {
	ips map[string][]net.IP
}

func (r staticHostResolver) LookupIP(host string) ([]net.IP, error) {
	ips, ok := r.ips[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return ips, nil
}

func TestVersionFloorCheck(t *testing.T) {
	tests := []struct {
		name       string
		minVersion string
		nmVersion  string
		admitted   bool
	}{
		{name: "NONE disables the check", minVersion: "NONE", nmVersion: "0.0.1", admitted: true},
		{name: "empty floor disables the check", minVersion: "", nmVersion: "0.0.1", admitted: true},
		{name: "equal version admitted", minVersion: "3.4.0", nmVersion: "3.4.0", admitted: true},
		{name: "newer version admitted", minVersion: "3.4.0", nmVersion: "3.10.1", admitted: true},
		{name: "older version rejected", minVersion: "3.4.0", nmVersion: "3.3.9", admitted: false},
		{name: "missing components read as zero", minVersion: "3.4.0", nmVersion: "3.4", admitted: true},
		{name: "short floor against long agent", minVersion: "3.4", nmVersion: "3.4.0", admitted: true},
		{name: "unparseable agent version rejected", minVersion: "3.4.0", nmVersion: "not-a-version", admitted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *config.Config) {
				cfg.Admission.MinNodeVersion = tt.minVersion
			})
			req := registerReq("h1", 8041)
			req.NMVersion = tt.nmVersion
			diag := env.svc.admit(req, "")
			if tt.admitted {
				assert.Empty(t, diag)
			} else {
				assert.NotEmpty(t, diag)
			}
		})
	}
}

func TestHostResolutionCheck(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Admission.ResolveHostCheck = true
	})
	env.svc.hosts = staticHostResolver{ips: map[string][]net.IP{
		"resolvable": {net.ParseIP("10.0.0.5")},
	}}

	// Unresolvable host with a known peer IP is rejected.
	req := registerReq("unresolvable", 8041)
	diag := env.svc.admit(req, "10.0.0.9:41000")
	assert.Contains(t, diag, "cannot be resolved")

	// Resolvable host passes.
	req = registerReq("resolvable", 8041)
	assert.Empty(t, env.svc.admit(req, "10.0.0.9:41000"))

	// Unknown peer address skips the check.
	req = registerReq("unresolvable", 8041)
	assert.Empty(t, env.svc.admit(req, ""))
}

func TestAdmissionOrderFirstFailureWins(t *testing.T) {
	// Both the version floor and the minimum allocation would fail; the
	// version diagnostic must win.
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Admission.MinNodeVersion = "9.0.0"
		cfg.Admission.MinAllocMemoryMiB = 1 << 40
	})

	diag := env.svc.admit(registerReq("h1", 8041), "")
	assert.Contains(t, diag, "version")
	assert.NotContains(t, diag, "minimum allocations")
}

func TestDecommissioningNodeBypassesListCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	id := types.NodeID{Host: "h1", Port: 8041}

	_, err := env.svc.Register(registerReq("h1", 8041), "")
	require.NoError(t, err)
	require.NoError(t, env.svc.DecommissionNode(id))

	// Graceful decommission moves the host onto the exclude list; the
	// draining node may still re-register.
	env.runtime.UpdateAdmission(config.AdmissionConfig{
		MinNodeVersion: config.DefaultMinNodeVersion,
		ExcludeHosts:   []string{"h1"},
	})

	assert.Empty(t, env.svc.admit(registerReq("h1", 8041), ""))

	// Another host on the exclude list is still rejected.
	env.runtime.UpdateAdmission(config.AdmissionConfig{
		MinNodeVersion: config.DefaultMinNodeVersion,
		ExcludeHosts:   []string{"h1", "h2"},
	})
	assert.NotEmpty(t, env.svc.admit(registerReq("h2", 8041), ""))
}

func TestPeerIP(t *testing.T) {
	assert.Nil(t, peerIP(""))
	assert.Nil(t, peerIP("not-an-ip:80"))
	assert.Equal(t, net.ParseIP("10.0.0.1"), peerIP("10.0.0.1:4000"))
	assert.Equal(t, net.ParseIP("10.0.0.2"), peerIP("10.0.0.2"))
}

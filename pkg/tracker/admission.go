package tracker

import (
	"fmt"
	"net"

	"github.com/cuemby/burrow/pkg/types"
	goversion "github.com/hashicorp/go-version"
)

// MinVersionNone disables the version-floor check; MinVersionEqualToRM
// resolves the floor to this server's own version.
const (
	MinVersionNone      = "NONE"
	MinVersionEqualToRM = "EqualToRM"
)

// admit runs the admission predicates in fixed order; the first failure
// wins. It returns a human-readable diagnostic, or "" when the node is
// admitted. peerAddr is the transport-reported remote address, possibly
// empty.
func (s *Service) admit(req *types.RegisterRequest, peerAddr string) string {
	adm := s.cfg.Admission()
	host := req.NodeID.Host

	// Version floor
	if diag := s.checkVersionFloor(adm.MinNodeVersion, req.NMVersion); diag != "" {
		return diag
	}

	// Host resolution
	if adm.ResolveHostCheck && peerIP(peerAddr) != nil {
		ips, err := s.hosts.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return fmt.Sprintf("hostname cannot be resolved (sending shutdown signal): node %s, remote address %s", req.NodeID, peerAddr)
		}
	}

	// Include/exclude lists; a node already draining may re-register even
	// when its host has been moved to the exclude list.
	if !s.nodesList.IsValid(host) && !s.isDecommissioningNode(req.NodeID) {
		return fmt.Sprintf("disallowed node manager from %s (sending shutdown signal)", host)
	}

	// Minimum allocation
	if diag := checkMinimumAllocation(adm.MinAllocMemoryMiB, adm.MinAllocVCores, req.Capability); diag != "" {
		return diag
	}

	return ""
}

func (s *Service) checkVersionFloor(minVersion, nmVersion string) string {
	if minVersion == "" || minVersion == MinVersionNone {
		return ""
	}
	if minVersion == MinVersionEqualToRM {
		minVersion = s.version
	}

	floor, err := goversion.NewVersion(minVersion)
	if err != nil {
		s.logger.Warn().Str("min_version", minVersion).Err(err).Msg("Unparseable minimum node version, skipping version check")
		return ""
	}
	agent, err := goversion.NewVersion(nmVersion)
	if err != nil {
		return fmt.Sprintf("disallowed node manager version %q, cannot be parsed (minimum version is %s)", nmVersion, minVersion)
	}
	if agent.LessThan(floor) {
		return fmt.Sprintf("disallowed node manager version %s, only node manager version %s or above is allowed (sending shutdown signal)", nmVersion, minVersion)
	}
	return ""
}

// checkMinimumAllocation validates a declared capability against the
// configured floors. Called on register and again after a dynamic
// resource override replaces the capability.
func checkMinimumAllocation(minMemoryMiB int64, minVCores int, capability types.Resource) string {
	if !capability.Meets(minMemoryMiB, minVCores) {
		return fmt.Sprintf(
			"node capability {memory: %d MiB, vcores: %d} does not meet minimum allocations {memory: %d MiB, vcores: %d} (sending shutdown signal)",
			capability.MemoryMiB, capability.VCores, minMemoryMiB, minVCores)
	}
	return ""
}

func (s *Service) isDecommissioningNode(id types.NodeID) bool {
	rec := s.registry.Get(id)
	if rec == nil {
		return false
	}
	rec.Lock()
	defer rec.Unlock()
	return rec.State == types.NodeStateDecommissioning
}

// peerIP extracts the remote peer's IP from a transport address, or nil
// when it is unknown.
func peerIP(peerAddr string) net.IP {
	if peerAddr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(peerAddr)
	if err != nil {
		host = peerAddr
	}
	return net.ParseIP(host)
}

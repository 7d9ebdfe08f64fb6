package tracker

import (
	"sync"

	"github.com/cuemby/burrow/pkg/types"
)

// collectorRegistry tracks the timeline-v2 collector for each running
// application. Entries carry a (clusterEpoch, version) stamp; replacement
// is compare-and-set on the happens-before order of stamps so a stale
// registration from a slow heartbeat can never clobber a newer one.
type collectorRegistry struct {
	mu    sync.Mutex
	byApp map[string]types.CollectorInfo
}

func newCollectorRegistry() *collectorRegistry {
	return &collectorRegistry{byApp: make(map[string]types.CollectorInfo)}
}

// updateAppCollectors stamps unstamped registrations with the cluster
// epoch and a fresh monotonic version, then applies each one CAS-style.
func (s *Service) updateAppCollectors(registering map[string]types.CollectorInfo) {
	reg := s.collectors
	for appID, info := range registering {
		if !info.Stamped() {
			info.Epoch = s.clusterEpoch
			info.Version = s.collectorVersion.Add(1)
		}

		reg.mu.Lock()
		existing, ok := reg.byApp[appID]
		if !ok || existing.Precedes(info) {
			reg.byApp[appID] = info
		}
		reg.mu.Unlock()
	}
}

// collectorsForApps snapshots the registered collectors for the given
// applications.
func (s *Service) collectorsForApps(apps []string) map[string]types.CollectorInfo {
	reg := s.collectors
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var out map[string]types.CollectorInfo
	for _, appID := range apps {
		if info, ok := reg.byApp[appID]; ok {
			if out == nil {
				out = make(map[string]types.CollectorInfo)
			}
			out[appID] = info
		}
	}
	return out
}

// removeAppCollector drops the collector entry for a finished app.
func (s *Service) removeAppCollector(appID string) {
	s.collectors.mu.Lock()
	defer s.collectors.mu.Unlock()
	delete(s.collectors.byApp, appID)
}

package tracker

import (
	"time"

	"github.com/cuemby/burrow/pkg/config"
)

// NextHeartbeatInterval selects the next heartbeat interval for one node.
// With scaling disabled it is always the default. With scaling enabled
// the agent's count of unacknowledged container updates shrinks the
// interval (more updates, faster beats) and an idle node grows it; the
// result is clamped to [min, max]. Pure function.
func NextHeartbeatInterval(p config.PacingConfig, queuedUpdates int) time.Duration {
	if !p.ScalingEnabled {
		return p.DefaultInterval.Std()
	}

	d := float64(p.DefaultInterval)
	var candidate float64
	if queuedUpdates > 0 {
		candidate = d / (1 + p.SpeedupFactor*float64(queuedUpdates))
	} else {
		candidate = d * (1 + p.SlowdownFactor)
	}

	interval := time.Duration(candidate)
	if interval < p.Min.Std() {
		return p.Min.Std()
	}
	if interval > p.Max.Std() {
		return p.Max.Std()
	}
	return interval
}

// Package policy holds the scan-freshness decision and the per-client
// cool-down limiter that gate fresh probes.
package policy

import "time"

// StalenessWindow is how old a cached scan may be before a new probe is
// required. Process-wide constant, not configurable per call.
const StalenessWindow = 14 * 24 * time.Hour

// NeedsFreshProbe decides whether a new network probe is required.
// prev is the timestamp of the most recent persisted scan, nil when no
// scan exists. Pure function: no side effects, no hidden clock.
func NeedsFreshProbe(prev *time.Time, force bool, now time.Time) bool {
	if force {
		return true
	}
	if prev == nil {
		return true
	}
	return now.Sub(*prev) >= StalenessWindow
}

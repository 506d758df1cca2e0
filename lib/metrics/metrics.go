// Package metrics records host activity: bundle installs, bridge outcomes and delegate
// availability.
package metrics

// Install results.
const (
	InstallInstalled = "installed"
	InstallSkipped   = "skipped"
	InstallFailed    = "failed"
)

// Bridge outcomes.
const (
	OutcomeForwarded   = "forwarded"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// Collector defines the interface for collecting host metrics
type Collector interface {
	// BundleInstall records the result of installing one packaged entry
	BundleInstall(result string)

	// BridgeRequest records how the bridge handled a request
	BridgeRequest(outcome string)

	// DelegatePresent records whether a delegate is currently tracked
	DelegatePresent(present bool)

	// TrackerTransition records a tracker state change, to "present" or "absent"
	TrackerTransition(to string)
}

// noopCollector is a no-op implementation of Collector
type noopCollector struct{}

func (noopCollector) BundleInstall(string)     {}
func (noopCollector) BridgeRequest(string)     {}
func (noopCollector) DelegatePresent(bool)     {}
func (noopCollector) TrackerTransition(string) {}

// Noop returns a collector that drops everything.
func Noop() Collector {
	return noopCollector{}
}

package session

import "github.com/beaconrelay/beaconrelay/pkg/model"

// Scanner is the beacon scanning service.
//
// Start and stop calls are only issued after the service reported
// Connected through the bound Events.
type Scanner interface {
	// Bind connects to the service. Connected is reported asynchronously.
	Bind(events Events) error

	// Unbind disconnects and stops delivering events.
	Unbind()

	StartRanging(region model.Region) error
	StopRanging(region model.Region) error
	StartMonitoring(region model.Region) error
	StopMonitoring(region model.Region) error

	// AddBackgroundRegion adds region to the persistent background
	// monitoring set. The set is created on first use.
	AddBackgroundRegion(region model.Region) error

	// RemoveBackgroundRegion removes region from the background set.
	RemoveBackgroundRegion(region model.Region) error
}

// Events receives scanning service callbacks. Implementations must be
// safe for calls from any goroutine.
type Events interface {
	Connected()
	RangingResult(region model.Region, beacons []model.Beacon)
	RangingFailed(region model.Region, err error)
	Entered(region model.Region)
	Exited(region model.Region)
	MonitoringFailed(region model.Region, err error)
}

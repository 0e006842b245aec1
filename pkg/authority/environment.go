package authority

import (
	"sync"

	"github.com/beaconrelay/beaconrelay/pkg/status"
)

// Capabilities is a set of device capabilities.
type Capabilities struct {
	LocationServices bool `yaml:"location_services"`
	Ranging          bool `yaml:"ranging"`
	Monitoring       bool `yaml:"monitoring"`
}

// AllCapabilities returns a set with every capability enabled.
func AllCapabilities() Capabilities {
	return Capabilities{LocationServices: true, Ranging: true, Monitoring: true}
}

// Environment is a mutable capability set.
type Environment struct {
	mu   sync.RWMutex
	caps Capabilities
}

// NewEnvironment creates an environment with caps.
func NewEnvironment(caps Capabilities) *Environment {
	return &Environment{caps: caps}
}

func (e *Environment) LocationServicesEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.caps.LocationServices
}

func (e *Environment) RangingAvailable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.caps.Ranging
}

func (e *Environment) MonitoringAvailable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.caps.Monitoring
}

// Capabilities returns the current set.
func (e *Environment) Capabilities() Capabilities {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.caps
}

// Set replaces the capability set.
func (e *Environment) Set(caps Capabilities) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caps = caps
}

// SetLocationServices toggles location services.
func (e *Environment) SetLocationServices(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caps.LocationServices = on
}

// Compile-time interface satisfaction check.
var _ status.Environment = (*Environment)(nil)

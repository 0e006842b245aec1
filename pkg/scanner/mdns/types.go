package mdns

import (
	"errors"
	"log/slog"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type beacons are advertised under.
	ServiceType = "_beacon._udp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the port advertised for simulated beacons. Beacons
	// carry no service, so the port is informational.
	DefaultPort = 7421
)

// TXT record keys.
const (
	TXTKeyUUID    = "uuid"  // Proximity UUID, canonical text form
	TXTKeyMajor   = "major" // Major value (0-65535)
	TXTKeyMinor   = "minor" // Minor value (0-65535)
	TXTKeyTxPower = "tx"    // Measured power at one meter in dBm (optional)
	TXTKeyRSSI    = "rssi"  // Received signal strength in dBm (optional)
)

// Timing constants.
const (
	// DefaultRangingInterval is how often ranged regions receive a beacon list.
	DefaultRangingInterval = time.Second

	// DefaultExitTimeout is how long a beacon stays visible without being
	// refreshed by a new announcement.
	DefaultExitTimeout = 30 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotBound            = errors.New("scanner not bound")
	ErrAlreadyBound        = errors.New("scanner already bound")
	ErrNotFound            = errors.New("beacon not found")
)

// BeaconInfo is the content of one beacon advertisement.
type BeaconInfo struct {
	// Name is the mDNS instance name.
	Name string `yaml:"name"`

	UUID    string `yaml:"uuid"`
	Major   uint16 `yaml:"major"`
	Minor   uint16 `yaml:"minor"`
	TxPower int    `yaml:"tx"`
	RSSI    int    `yaml:"rssi"`
}

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	// ServiceType is the browsed DNS-SD type (default: ServiceType).
	ServiceType string

	// Interface restricts browsing to one network interface.
	// Empty means all interfaces.
	Interface string

	// RangingInterval is the ranging delivery period.
	RangingInterval time.Duration

	// ExitTimeout is how long an unrefreshed beacon stays visible.
	ExitTimeout time.Duration

	// Logger is used for operational logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultScannerConfig returns the default scanner configuration.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		ServiceType:     ServiceType,
		RangingInterval: DefaultRangingInterval,
		ExitTimeout:     DefaultExitTimeout,
	}
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// ServiceType is the announced DNS-SD type (default: ServiceType).
	ServiceType string

	// Interface restricts advertising to one network interface.
	// Empty means all interfaces.
	Interface string

	// TTL is the time-to-live of the announced records.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{ServiceType: ServiceType, TTL: 120 * time.Second}
}

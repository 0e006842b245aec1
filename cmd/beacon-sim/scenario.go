package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/beaconrelay/beaconrelay/pkg/scanner/mdns"
)

// Scenario describes the simulated beacons.
//
//	interval: 2s
//	walk: true
//	beacons:
//	  - name: lobby-1
//	    uuid: f7826da6-4fa2-4e98-8024-bc5b71e0893e
//	    major: 1
//	    minor: 1
//	    tx: -59
//	    rssi: -65
type Scenario struct {
	// Interval is the period of signal strength updates.
	Interval time.Duration `yaml:"interval"`

	// Walk withdraws and re-announces beacons so monitored regions see
	// exits and entries.
	Walk bool `yaml:"walk"`

	Beacons []mdns.BeaconInfo `yaml:"beacons"`
}

// Signal strength bounds of the random walk.
const (
	minRSSI        = -95
	maxRSSI        = -35
	defaultTxPower = -59
)

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	sc := &Scenario{Interval: 2 * time.Second}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// GenerateScenario creates count beacons sharing one UUID and major, with
// minors 1..count.
func GenerateScenario(prefix, id string, major uint16, count int) (*Scenario, error) {
	if id == "" {
		id = uuid.NewString()
	}
	sc := &Scenario{Interval: 2 * time.Second}
	for i := 1; i <= count; i++ {
		sc.Beacons = append(sc.Beacons, mdns.BeaconInfo{
			Name:    fmt.Sprintf("%s-%d", prefix, i),
			UUID:    id,
			Major:   major,
			Minor:   uint16(i),
			TxPower: defaultTxPower,
			RSSI:    -60 - 5*((i-1)%6),
		})
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Validate checks every beacon and normalizes UUIDs.
func (s *Scenario) Validate() error {
	if len(s.Beacons) == 0 {
		return errors.New("scenario has no beacons")
	}
	if s.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	seen := make(map[string]bool, len(s.Beacons))
	for i := range s.Beacons {
		b := &s.Beacons[i]
		if err := mdns.ValidateInstanceName(b.Name); err != nil {
			return fmt.Errorf("beacon %d: %w", i, err)
		}
		if seen[b.Name] {
			return fmt.Errorf("beacon %q: duplicate name", b.Name)
		}
		seen[b.Name] = true

		id, err := uuid.Parse(b.UUID)
		if err != nil {
			return fmt.Errorf("beacon %q: invalid uuid: %w", b.Name, err)
		}
		b.UUID = id.String()
		if b.TxPower == 0 {
			b.TxPower = defaultTxPower
		}
		if b.RSSI == 0 {
			b.RSSI = -65
		}
	}
	return nil
}

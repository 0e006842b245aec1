package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/scanner/mdns"
)

// advertiser is the part of mdns.Advertiser the simulation drives.
type advertiser interface {
	Advertise(info *mdns.BeaconInfo) error
	Update(info *mdns.BeaconInfo) error
	Stop(name string) error
	StopAll()
}

var _ advertiser = (*mdns.Advertiser)(nil)

// Simulation announces a scenario and varies it over time.
type Simulation struct {
	scenario *Scenario
	adv      advertiser
	rng      *rand.Rand
	logger   *slog.Logger

	// hidden holds beacons withdrawn by the walk, by index.
	hidden map[int]bool
}

// NewSimulation creates a simulation of sc on adv.
func NewSimulation(sc *Scenario, adv advertiser, seed uint64, logger *slog.Logger) *Simulation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulation{
		scenario: sc,
		adv:      adv,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:   logger,
		hidden:   make(map[int]bool),
	}
}

// Start announces every beacon.
func (s *Simulation) Start() error {
	for i := range s.scenario.Beacons {
		b := &s.scenario.Beacons[i]
		if err := s.adv.Advertise(b); err != nil {
			s.adv.StopAll()
			return err
		}
		s.logger.Info("[SIM] beacon announced", "name", b.Name, "uuid", b.UUID,
			"major", b.Major, "minor", b.Minor, "rssi", b.RSSI)
	}
	return nil
}

// Run steps the simulation every interval until ctx is done, then
// withdraws every beacon.
func (s *Simulation) Run(ctx context.Context) {
	ticker := time.NewTicker(s.scenario.Interval)
	defer ticker.Stop()
	defer s.adv.StopAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step drifts the signal strength of every visible beacon and, when the
// scenario walks, toggles one beacon's visibility.
func (s *Simulation) Step() {
	for i := range s.scenario.Beacons {
		if s.hidden[i] {
			continue
		}
		b := &s.scenario.Beacons[i]
		b.RSSI = clamp(b.RSSI+s.rng.IntN(7)-3, minRSSI, maxRSSI)
		if err := s.adv.Update(b); err != nil {
			s.logger.Warn("[SIM] update failed", "name", b.Name, "error", err)
		}
	}

	if !s.scenario.Walk {
		return
	}
	i := s.rng.IntN(len(s.scenario.Beacons))
	b := &s.scenario.Beacons[i]
	if s.hidden[i] {
		if err := s.adv.Advertise(b); err != nil {
			s.logger.Warn("[SIM] announce failed", "name", b.Name, "error", err)
			return
		}
		delete(s.hidden, i)
		s.logger.Info("[SIM] beacon back in range", "name", b.Name)
		return
	}
	if err := s.adv.Stop(b.Name); err != nil {
		s.logger.Warn("[SIM] withdraw failed", "name", b.Name, "error", err)
		return
	}
	s.hidden[i] = true
	s.logger.Info("[SIM] beacon out of range", "name", b.Name)
}

// Visible returns the number of announced beacons.
func (s *Simulation) Visible() int {
	return len(s.scenario.Beacons) - len(s.hidden)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

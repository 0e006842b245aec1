package mdns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/session"
)

// browseFunc is the signature of zeroconf.Browse.
type browseFunc func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// Scanner implements session.Scanner on top of mDNS browsing. Beacons are
// DNS-SD services of the configured type whose TXT records describe the
// beacon.
//
// Browsing starts on Bind and Connected is reported once it runs. Ranged
// regions receive their beacon list every RangingInterval. Monitored
// regions, including the background set, report Entered when the first
// matching beacon appears and Exited when the last one is withdrawn or not
// refreshed within ExitTimeout.
type Scanner struct {
	config ScannerConfig
	logger *slog.Logger
	browse browseFunc
	now    func() time.Time

	mu      sync.Mutex
	tracker *tracker
	events  session.Events
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScanner creates a Scanner. Zero values select the defaults.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.ServiceType == "" {
		cfg.ServiceType = ServiceType
	}
	if cfg.RangingInterval <= 0 {
		cfg.RangingInterval = DefaultRangingInterval
	}
	if cfg.ExitTimeout <= 0 {
		cfg.ExitTimeout = DefaultExitTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		config:  cfg,
		logger:  logger,
		browse:  zeroconf.Browse,
		now:     time.Now,
		tracker: newTracker(cfg.ExitTimeout),
	}
}

// Bind starts browsing and reports Connected to events.
func (s *Scanner) Bind(events session.Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events != nil {
		return ErrAlreadyBound
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.events = events
	s.cancel = cancel

	entries := make(chan *zeroconf.ServiceEntry, 16)
	removed := make(chan *zeroconf.ServiceEntry, 16)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		err := s.browse(ctx, s.config.ServiceType, Domain, entries, removed, s.browserOptions()...)
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("mdns browse failed", "error", err)
			s.fail(ctx, events, err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.run(ctx, events, entries, removed)
	}()

	s.logger.Info("mdns scanner bound", "service", s.config.ServiceType, "interface", s.config.Interface)
	return nil
}

// Unbind stops browsing. Observed regions and visible beacons are
// forgotten; no events are delivered after Unbind returns.
func (s *Scanner) Unbind() {
	s.mu.Lock()
	if s.events == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.events = nil
	s.tracker.reset()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("mdns scanner unbound")
}

// StartRanging adds region to the ranged set.
func (s *Scanner) StartRanging(region model.Region) error {
	return s.update(func(t *tracker) error { return t.startRanging(region) })
}

// StopRanging removes region from the ranged set.
func (s *Scanner) StopRanging(region model.Region) error {
	return s.update(func(t *tracker) error { return found(t.stopRanging(region.Identifier), region) })
}

// StartMonitoring adds region to the foreground monitored set.
func (s *Scanner) StartMonitoring(region model.Region) error {
	return s.update(func(t *tracker) error { return t.startMonitoring(region, false) })
}

// StopMonitoring removes region from the foreground monitored set.
func (s *Scanner) StopMonitoring(region model.Region) error {
	return s.update(func(t *tracker) error { return found(t.stopMonitoring(region.Identifier, false), region) })
}

// AddBackgroundRegion adds region to the background monitored set.
func (s *Scanner) AddBackgroundRegion(region model.Region) error {
	return s.update(func(t *tracker) error { return t.startMonitoring(region, true) })
}

// RemoveBackgroundRegion removes region from the background monitored set.
func (s *Scanner) RemoveBackgroundRegion(region model.Region) error {
	return s.update(func(t *tracker) error { return found(t.stopMonitoring(region.Identifier, true), region) })
}

func (s *Scanner) update(fn func(*tracker) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		return ErrNotBound
	}
	return fn(s.tracker)
}

func found(ok bool, region model.Region) error {
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, region.Identifier)
	}
	return nil
}

// run consumes browse results and drives ranging and monitoring until ctx
// is cancelled. Every event except browse failures is delivered from here.
func (s *Scanner) run(ctx context.Context, events session.Events, entries, removed <-chan *zeroconf.ServiceEntry) {
	events.Connected()

	ticker := time.NewTicker(s.config.RangingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			s.handleEntry(ctx, events, entry)

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			s.handleRemoved(ctx, events, entry)

		case <-ticker.C:
			s.tick(ctx, events)
		}
	}
}

func (s *Scanner) handleEntry(ctx context.Context, events session.Events, entry *zeroconf.ServiceEntry) {
	info, err := DecodeBeaconTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		s.logger.Debug("ignoring advertisement", "instance", entry.Instance, "error", err)
		return
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.tracker.seen(entry.Instance, info.Beacon(), s.now())
	trans := s.tracker.transitions()
	s.mu.Unlock()

	deliverTransitions(events, trans)
}

func (s *Scanner) handleRemoved(ctx context.Context, events session.Events, entry *zeroconf.ServiceEntry) {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.tracker.lost(entry.Instance)
	trans := s.tracker.transitions()
	s.mu.Unlock()

	deliverTransitions(events, trans)
}

func (s *Scanner) tick(ctx context.Context, events session.Events) {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.tracker.expire(s.now())
	trans := s.tracker.transitions()
	results := s.tracker.ranging()
	s.mu.Unlock()

	deliverTransitions(events, trans)
	for _, r := range results {
		events.RangingResult(r.region, r.beacons)
	}
}

// fail reports a browse failure to every observed region.
func (s *Scanner) fail(ctx context.Context, events session.Events, err error) {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	var ranged, watched []model.Region
	for _, r := range s.tracker.ranged {
		ranged = append(ranged, r.region)
	}
	for _, w := range s.tracker.watched {
		watched = append(watched, w.region)
	}
	s.mu.Unlock()

	err = fmt.Errorf("mdns browse failed: %w", err)
	for _, r := range ranged {
		events.RangingFailed(r, err)
	}
	for _, r := range watched {
		events.MonitoringFailed(r, err)
	}
}

func deliverTransitions(events session.Events, trans []transition) {
	for _, tr := range trans {
		if tr.enter {
			events.Entered(tr.region)
		} else {
			events.Exited(tr.region)
		}
	}
}

// browserOptions returns zeroconf client options based on config.
func (s *Scanner) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	// Select specific interface if configured
	if s.config.Interface != "" {
		iface, err := net.InterfaceByName(s.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

var _ session.Scanner = (*Scanner)(nil)

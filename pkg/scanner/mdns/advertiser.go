package mdns

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser announces simulated beacons over mDNS.
type Advertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by instance name
}

// NewAdvertiser creates a new advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	if config.ServiceType == "" {
		config.ServiceType = ServiceType
	}
	return &Advertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// getInterfaces returns the network interfaces to use for advertising.
// Returns nil to use all interfaces.
func (a *Advertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts announcing a beacon, replacing an earlier announcement
// with the same name.
func (a *Advertiser) Advertise(info *BeaconInfo) error {
	if err := ValidateInstanceName(info.Name); err != nil {
		return err
	}
	txt := EncodeBeaconTXT(info)
	if _, err := DecodeBeaconTXT(txt); err != nil {
		return fmt.Errorf("beacon %q: %w", info.Name, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if server, exists := a.servers[info.Name]; exists {
		server.Shutdown()
		delete(a.servers, info.Name)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Name,
		a.config.ServiceType,
		Domain,
		DefaultPort,
		TXTRecordsToStrings(txt),
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register beacon %q: %w", info.Name, err)
	}

	a.servers[info.Name] = server
	return nil
}

// Update replaces the TXT records of an announced beacon, e.g. to change
// its signal strength.
func (a *Advertiser) Update(info *BeaconInfo) error {
	txt := EncodeBeaconTXT(info)
	if _, err := DecodeBeaconTXT(txt); err != nil {
		return fmt.Errorf("beacon %q: %w", info.Name, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[info.Name]
	if !exists {
		return ErrNotFound
	}
	server.SetText(TXTRecordsToStrings(txt))
	return nil
}

// Stop withdraws one beacon.
func (a *Advertiser) Stop(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[name]
	if !exists {
		return ErrNotFound
	}
	server.Shutdown()
	delete(a.servers, name)
	return nil
}

// StopAll withdraws every beacon.
func (a *Advertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, server := range a.servers {
		server.Shutdown()
		delete(a.servers, name)
	}
}

// Names returns the announced instance names, sorted.
func (a *Advertiser) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.servers))
	for name := range a.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

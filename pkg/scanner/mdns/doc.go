// Package mdns implements a beacon scanning service on mDNS/DNS-SD.
//
// Each beacon is one service instance of type _beacon._udp in the local
// domain. Its TXT records describe the beacon:
//
//	uuid   proximity UUID (required)
//	major  major value, 0-65535 (required)
//	minor  minor value, 0-65535 (required)
//	tx     measured power at one meter in dBm (optional)
//	rssi   received signal strength in dBm (optional)
//
// Scanner browses for these services and implements session.Scanner, so a
// coordinator can range and monitor regions against real network
// announcements. Advertiser announces simulated beacons; beacon-sim uses it
// to drive a relay without radio hardware.
package mdns

package model

import "math"

// Proximity is the coarse distance class of a beacon.
type Proximity uint8

const (
	ProximityUnknown Proximity = iota
	ProximityImmediate
	ProximityNear
	ProximityFar
)

// String returns the proximity name.
func (p Proximity) String() string {
	switch p {
	case ProximityImmediate:
		return "immediate"
	case ProximityNear:
		return "near"
	case ProximityFar:
		return "far"
	default:
		return "unknown"
	}
}

// Beacon is one sighting reported by a ranging session.
type Beacon struct {
	UUID      string    `cbor:"1,keyasint"`
	Major     uint16    `cbor:"2,keyasint"`
	Minor     uint16    `cbor:"3,keyasint"`
	RSSI      int       `cbor:"4,keyasint"`
	TxPower   int       `cbor:"5,keyasint,omitempty"`
	Accuracy  float64   `cbor:"6,keyasint"`
	Proximity Proximity `cbor:"7,keyasint"`
}

// EstimateAccuracy returns the estimated distance in meters for a received
// signal strength given the calibrated power at one meter. It returns -1 when
// the inputs carry no usable signal.
func EstimateAccuracy(rssi, txPower int) float64 {
	if rssi == 0 || txPower == 0 {
		return -1
	}
	ratio := float64(rssi) / float64(txPower)
	if ratio < 1.0 {
		return math.Pow(ratio, 10)
	}
	return 0.89976*math.Pow(ratio, 7.7095) + 0.111
}

// ProximityFor classifies an accuracy estimate.
func ProximityFor(accuracy float64) Proximity {
	switch {
	case accuracy < 0:
		return ProximityUnknown
	case accuracy < 0.5:
		return ProximityImmediate
	case accuracy < 4.0:
		return ProximityNear
	default:
		return ProximityFar
	}
}

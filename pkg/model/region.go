package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Region errors.
var (
	ErrMissingIdentifier = errors.New("region identifier is required")
	ErrInvalidUUID       = errors.New("invalid proximity UUID")
	ErrMinorWithoutMajor = errors.New("minor requires major")
)

// Region describes a set of beacons to observe.
//
// CBOR encoding uses integer keys so the type can travel in wire payloads
// without an intermediate representation.
type Region struct {
	// Identifier is the stable key used for equality and deduplication.
	Identifier string `cbor:"1,keyasint" yaml:"identifier"`

	// UUID is the proximity UUID in canonical text form. Empty matches any UUID.
	UUID string `cbor:"2,keyasint,omitempty" yaml:"uuid,omitempty"`

	// Major narrows the region to one major value.
	Major *uint16 `cbor:"3,keyasint,omitempty" yaml:"major,omitempty"`

	// Minor narrows the region to one minor value. Requires Major.
	Minor *uint16 `cbor:"4,keyasint,omitempty" yaml:"minor,omitempty"`
}

// Filter is the parsed, scanner-facing form of a Region.
type Filter struct {
	UUID     uuid.UUID
	AnyUUID  bool
	Major    *uint16
	Minor    *uint16
	RegionID string
}

// Filter builds the scanner-facing filter for the region.
func (r Region) Filter() (Filter, error) {
	if r.Identifier == "" {
		return Filter{}, ErrMissingIdentifier
	}
	if r.Minor != nil && r.Major == nil {
		return Filter{}, fmt.Errorf("region %q: %w", r.Identifier, ErrMinorWithoutMajor)
	}

	f := Filter{
		AnyUUID:  r.UUID == "",
		Major:    r.Major,
		Minor:    r.Minor,
		RegionID: r.Identifier,
	}
	if !f.AnyUUID {
		id, err := uuid.Parse(r.UUID)
		if err != nil {
			return Filter{}, fmt.Errorf("region %q: %w: %v", r.Identifier, ErrInvalidUUID, err)
		}
		f.UUID = id
	}
	return f, nil
}

// Matches reports whether the beacon falls inside the filter.
func (f Filter) Matches(b Beacon) bool {
	if !f.AnyUUID {
		id, err := uuid.Parse(b.UUID)
		if err != nil || id != f.UUID {
			return false
		}
	}
	if f.Major != nil && b.Major != *f.Major {
		return false
	}
	if f.Minor != nil && b.Minor != *f.Minor {
		return false
	}
	return true
}

// String returns a compact description of the region.
func (r Region) String() string {
	s := r.Identifier
	if r.UUID != "" {
		s += " " + r.UUID
	}
	if r.Major != nil {
		s += fmt.Sprintf(" major=%d", *r.Major)
	}
	if r.Minor != nil {
		s += fmt.Sprintf(" minor=%d", *r.Minor)
	}
	return s
}

// Kind selects how a region is observed.
type Kind uint8

const (
	// KindRanging yields continuous lists of visible beacons.
	KindRanging Kind = 1

	// KindMonitoring yields discrete enter/exit transitions.
	KindMonitoring Kind = 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRanging:
		return "RANGING"
	case KindMonitoring:
		return "MONITORING"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindRanging || k == KindMonitoring
}

// SessionKey identifies one shared scanning session.
type SessionKey struct {
	RegionID string
	Kind     Kind
}

// Key returns the session key for a region observed with the given kind.
func (r Region) Key(kind Kind) SessionKey {
	return SessionKey{RegionID: r.Identifier, Kind: kind}
}

// String returns "<kind>:<region>".
func (k SessionKey) String() string {
	return k.Kind.String() + ":" + k.RegionID
}

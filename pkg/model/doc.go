// Package model defines the value types shared by the beacon coordinator.
//
// # Regions
//
// A Region names a filter describing which beacons to observe. The
// Identifier is the only field the coordinator inspects: two regions with
// the same identifier are the same scanning target even when their filter
// parameters differ. The filter parameters (proximity UUID, major, minor)
// are only parsed when building the scanner-facing Filter.
//
// # Kinds and Session Keys
//
// A region is observed either by ranging (continuous lists of visible
// beacons) or by monitoring (discrete enter/exit transitions). The pair
// (region identifier, kind) is the SessionKey: the granularity at which
// scanning hardware is shared between subscriptions.
//
// # Requests and Results
//
// An ActiveRequest is one subscription. Its identity is its pointer, so two
// requests with identical fields are still distinct subscriptions. Results
// are delivered to the request callback as Result values carrying either a
// payload or an *Error.
package model

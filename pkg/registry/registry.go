// Package registry holds the ordered set of active subscriptions.
//
// The registry is not safe for concurrent use. It is owned by a single
// execution context (the coordinator loop), which is the only writer.
package registry

import "github.com/beaconrelay/beaconrelay/pkg/model"

// Registry is an ordered list of subscriptions keyed by identity.
type Registry struct {
	requests []*model.ActiveRequest
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Add appends a request. Adding the same request twice is a no-op.
func (r *Registry) Add(req *model.ActiveRequest) {
	if r.Contains(req) {
		return
	}
	r.requests = append(r.requests, req)
}

// Remove unregisters a request by identity. It returns false if the request
// was not registered.
func (r *Registry) Remove(req *model.ActiveRequest) bool {
	for i, existing := range r.requests {
		if existing == req {
			r.requests = append(r.requests[:i], r.requests[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether this exact request is registered.
func (r *Registry) Contains(req *model.ActiveRequest) bool {
	for _, existing := range r.requests {
		if existing == req {
			return true
		}
	}
	return false
}

// AnyRunning reports whether a registered request with the key is running.
// The answer is always recomputed from the registry contents.
func (r *Registry) AnyRunning(key model.SessionKey) bool {
	for _, req := range r.requests {
		if req.IsRunning() && req.Key() == key {
			return true
		}
	}
	return false
}

// Matching returns the requests observing the region identifier with the
// given kind, in registration order.
func (r *Registry) Matching(regionID string, kind model.Kind) []*model.ActiveRequest {
	var out []*model.ActiveRequest
	for _, req := range r.requests {
		if req.Kind == kind && req.Region.Identifier == regionID {
			out = append(out, req)
		}
	}
	return out
}

// Filter returns a snapshot of the requests accepted by fn, in registration
// order. The snapshot is safe to iterate while the registry changes.
func (r *Registry) Filter(fn func(*model.ActiveRequest) bool) []*model.ActiveRequest {
	var out []*model.ActiveRequest
	for _, req := range r.requests {
		if fn(req) {
			out = append(out, req)
		}
	}
	return out
}

// All returns a snapshot of every registered request.
func (r *Registry) All() []*model.ActiveRequest {
	out := make([]*model.ActiveRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

// Len returns the number of registered requests.
func (r *Registry) Len() int {
	return len(r.requests)
}

// RunningSessions returns the distinct keys that currently have a running request.
func (r *Registry) RunningSessions() []model.SessionKey {
	seen := make(map[model.SessionKey]bool)
	var keys []model.SessionKey
	for _, req := range r.requests {
		if !req.IsRunning() {
			continue
		}
		key := req.Key()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

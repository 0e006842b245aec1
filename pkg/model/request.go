package model

// Callback receives results for one subscription.
type Callback func(Result[Update])

// ActiveRequest is one client subscription. Its identity is the pointer.
//
// The running flag is owned by the coordinator's execution context and must
// not be mutated elsewhere.
type ActiveRequest struct {
	Kind         Kind
	Region       Region
	InBackground bool
	Callback     Callback

	running bool
}

// NewActiveRequest creates a subscription in the not-running state.
func NewActiveRequest(kind Kind, region Region, inBackground bool, callback Callback) *ActiveRequest {
	return &ActiveRequest{
		Kind:         kind,
		Region:       region,
		InBackground: inBackground,
		Callback:     callback,
	}
}

// Key returns the session key shared by requests observing the same target.
func (r *ActiveRequest) Key() SessionKey {
	return r.Region.Key(r.Kind)
}

// IsRunning reports whether the request currently holds its session.
func (r *ActiveRequest) IsRunning() bool {
	return r.running
}

// SetRunning updates the running flag.
func (r *ActiveRequest) SetRunning(running bool) {
	r.running = running
}

// IsBackgroundMonitoring reports whether the request uses the shared
// background monitoring set.
func (r *ActiveRequest) IsBackgroundMonitoring() bool {
	return r.InBackground && r.Kind == KindMonitoring
}

// Deliver invokes the callback if one is set.
func (r *ActiveRequest) Deliver(result Result[Update]) {
	if r.Callback != nil {
		r.Callback(result)
	}
}

package log

import "sync"

// Recorder keeps events in memory. It is intended for tests and for the
// interactive tools that want to inspect recent activity.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Log appends the event.
func (r *Recorder) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Sessions returns the recorded session events in order.
func (r *Recorder) Sessions() []SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SessionEvent
	for _, e := range r.events {
		if e.Session != nil {
			out = append(out, *e.Session)
		}
	}
	return out
}

// Compile-time interface satisfaction check.
var _ Logger = (*Recorder)(nil)

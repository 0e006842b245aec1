package coordinator

import (
	"sync"

	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// BackgroundEventType names a background monitoring transition.
type BackgroundEventType string

const (
	BackgroundEnter BackgroundEventType = "didEnterRegion"
	BackgroundExit  BackgroundEventType = "didExitRegion"
)

// BackgroundEvent is delivered to background callbacks for every
// transition of a region in the background monitoring set.
type BackgroundEvent struct {
	Type   BackgroundEventType   `cbor:"1,keyasint"`
	Region model.Region          `cbor:"2,keyasint"`
	State  model.MonitoringState `cbor:"3,keyasint"`
}

// BackgroundNotifier is the host's long-lived receiver of background
// monitoring transitions. Background monitoring requests are only
// accepted when one is configured.
type BackgroundNotifier struct {
	mu        sync.Mutex
	nextID    uint64
	callbacks map[uint64]func(BackgroundEvent)
	order     []uint64
}

// NewBackgroundNotifier creates a notifier without callbacks.
func NewBackgroundNotifier() *BackgroundNotifier {
	return &BackgroundNotifier{callbacks: make(map[uint64]func(BackgroundEvent))}
}

// AddCallback registers fn and returns a function that unregisters it.
func (n *BackgroundNotifier) AddCallback(fn func(BackgroundEvent)) (remove func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.callbacks[id] = fn
	n.order = append(n.order, id)

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.callbacks[id]; !ok {
			return
		}
		delete(n.callbacks, id)
		for i, v := range n.order {
			if v == id {
				n.order = append(n.order[:i], n.order[i+1:]...)
				break
			}
		}
	}
}

// Len returns the number of registered callbacks.
func (n *BackgroundNotifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.order)
}

// Notify delivers ev to every callback in registration order.
func (n *BackgroundNotifier) Notify(ev BackgroundEvent) {
	n.mu.Lock()
	fns := make([]func(BackgroundEvent), 0, len(n.order))
	for _, id := range n.order {
		fns = append(fns, n.callbacks[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

package mdns

import (
	"sort"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// sighting is the last announcement of one beacon instance.
type sighting struct {
	beacon model.Beacon
	seen   time.Time
}

type rangedRegion struct {
	region model.Region
	filter model.Filter
}

// watch is one monitored region. A region may be monitored in the
// foreground and through the background set at the same time; it is
// dropped once neither source remains.
type watch struct {
	region     model.Region
	filter     model.Filter
	inside     bool
	foreground bool
	background bool
}

// transition is an enter or exit of a monitored region.
type transition struct {
	region model.Region
	enter  bool
}

// rangingResult is the beacon list of one ranged region.
type rangingResult struct {
	region  model.Region
	beacons []model.Beacon
}

// tracker keeps visible beacons and the observed regions and derives
// ranging lists and monitoring transitions from them. It is not safe for
// concurrent use.
type tracker struct {
	exitTimeout time.Duration

	sightings map[string]sighting
	ranged    map[string]rangedRegion
	watched   map[string]*watch
}

func newTracker(exitTimeout time.Duration) *tracker {
	return &tracker{
		exitTimeout: exitTimeout,
		sightings:   make(map[string]sighting),
		ranged:      make(map[string]rangedRegion),
		watched:     make(map[string]*watch),
	}
}

// seen records an announcement of instance.
func (t *tracker) seen(instance string, b model.Beacon, now time.Time) {
	t.sightings[instance] = sighting{beacon: b, seen: now}
}

// lost forgets instance.
func (t *tracker) lost(instance string) {
	delete(t.sightings, instance)
}

// expire forgets beacons not refreshed within the exit timeout.
func (t *tracker) expire(now time.Time) {
	if t.exitTimeout <= 0 {
		return
	}
	for instance, s := range t.sightings {
		if now.Sub(s.seen) > t.exitTimeout {
			delete(t.sightings, instance)
		}
	}
}

func (t *tracker) startRanging(region model.Region) error {
	f, err := region.Filter()
	if err != nil {
		return err
	}
	t.ranged[region.Identifier] = rangedRegion{region: region, filter: f}
	return nil
}

func (t *tracker) stopRanging(id string) bool {
	_, ok := t.ranged[id]
	delete(t.ranged, id)
	return ok
}

func (t *tracker) startMonitoring(region model.Region, background bool) error {
	f, err := region.Filter()
	if err != nil {
		return err
	}
	w, ok := t.watched[region.Identifier]
	if !ok {
		w = &watch{}
		t.watched[region.Identifier] = w
	}
	w.region = region
	w.filter = f
	if background {
		w.background = true
	} else {
		w.foreground = true
	}
	return nil
}

func (t *tracker) stopMonitoring(id string, background bool) bool {
	w, ok := t.watched[id]
	if !ok {
		return false
	}
	if background {
		if !w.background {
			return false
		}
		w.background = false
	} else {
		if !w.foreground {
			return false
		}
		w.foreground = false
	}
	if !w.foreground && !w.background {
		delete(t.watched, id)
	}
	return true
}

// visible returns the beacons matching f, strongest first.
func (t *tracker) visible(f model.Filter) []model.Beacon {
	var out []model.Beacon
	for _, s := range t.sightings {
		if f.Matches(s.beacon) {
			out = append(out, s.beacon)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		if out[i].Major != out[j].Major {
			return out[i].Major < out[j].Major
		}
		return out[i].Minor < out[j].Minor
	})
	return out
}

// ranging returns the current beacon list of every ranged region, ordered
// by region identifier. Regions without visible beacons get an empty list.
func (t *tracker) ranging() []rangingResult {
	ids := make([]string, 0, len(t.ranged))
	for id := range t.ranged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]rangingResult, 0, len(ids))
	for _, id := range ids {
		r := t.ranged[id]
		out = append(out, rangingResult{region: r.region, beacons: t.visible(r.filter)})
	}
	return out
}

// transitions updates the inside state of every monitored region and
// returns the changes, ordered by region identifier.
func (t *tracker) transitions() []transition {
	ids := make([]string, 0, len(t.watched))
	for id := range t.watched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []transition
	for _, id := range ids {
		w := t.watched[id]
		inside := len(t.visible(w.filter)) > 0
		if inside == w.inside {
			continue
		}
		w.inside = inside
		out = append(out, transition{region: w.region, enter: inside})
	}
	return out
}

// reset forgets every beacon and observed region.
func (t *tracker) reset() {
	clear(t.sightings)
	clear(t.ranged)
	clear(t.watched)
}

package coordinator

import (
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/session"
)

// scannerEvents posts scanner callbacks onto the loop.
type scannerEvents struct {
	c *Coordinator
}

func (e scannerEvents) Connected() {
	e.c.post(e.c.connected)
}

func (e scannerEvents) RangingResult(region model.Region, beacons []model.Beacon) {
	e.c.post(func() {
		e.c.dispatch(region, model.KindRanging, model.Success(model.Update{Beacons: beacons}, &region))
	})
}

func (e scannerEvents) RangingFailed(region model.Region, err error) {
	e.c.post(func() {
		e.c.dispatch(region, model.KindRanging, model.Failure[model.Update](model.RuntimeError(&region, err.Error(), false)))
	})
}

func (e scannerEvents) Entered(region model.Region) {
	e.c.post(func() { e.c.transition(region, model.MonitoringEnterOrInside) })
}

func (e scannerEvents) Exited(region model.Region) {
	e.c.post(func() { e.c.transition(region, model.MonitoringExitOrOutside) })
}

func (e scannerEvents) MonitoringFailed(region model.Region, err error) {
	e.c.post(func() {
		e.c.dispatch(region, model.KindMonitoring, model.Failure[model.Update](model.RuntimeError(&region, err.Error(), false)))
	})
}

func (c *Coordinator) transition(region model.Region, state model.MonitoringState) {
	c.dispatch(region, model.KindMonitoring, model.Success(model.Update{State: state}, &region))

	if c.config.Background == nil || !c.dispatching {
		return
	}
	if path, ok := c.sessions.Path(region.Key(model.KindMonitoring)); !ok || path != session.PathBackground {
		return
	}
	typ := BackgroundEnter
	if state == model.MonitoringExitOrOutside {
		typ = BackgroundExit
	}
	c.config.Background.Notify(BackgroundEvent{Type: typ, Region: region, State: state})
}

// dispatch delivers res to every registered request of kind observing the
// region, in registration order. The running flag is not consulted.
func (c *Coordinator) dispatch(region model.Region, kind model.Kind, res model.Result[model.Update]) {
	if !c.dispatching {
		return
	}

	recipients := c.registry.Matching(region.Identifier, kind)
	for _, req := range recipients {
		req.Deliver(res)
	}

	ev := &log.DispatchEvent{
		Kind:       kind.String(),
		Recipients: len(recipients),
		Beacons:    len(res.Value.Beacons),
	}
	if res.Value.State != model.MonitoringUnknown {
		ev.State = res.Value.State.String()
	}
	if res.Err != nil {
		ev.Failure = res.Err.Message
	}
	c.eventLog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerCoordinator,
		Category:  log.CategoryDispatch,
		RegionID:  region.Identifier,
		Dispatch:  ev,
	})
}

var _ session.Events = scannerEvents{}

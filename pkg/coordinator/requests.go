package coordinator

import (
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// The methods in this file run on the loop.

func (c *Coordinator) add(req *model.ActiveRequest, permission model.Permission) {
	if _, err := req.Region.Filter(); err != nil {
		c.reject(req, model.RuntimeError(regionOf(req), err.Error(), true))
		return
	}
	if req.IsBackgroundMonitoring() && c.config.Background == nil {
		c.reject(req, model.RuntimeError(regionOf(req), BackgroundNotifierMessage, true))
		return
	}

	c.registry.Add(req)
	c.held[req] = holdGatePending
	c.logRequest(req, log.RequestRegistered, "")
	c.logger.Debug("request registered", "kind", req.Kind, "region", req.Region.Identifier,
		"background", req.InBackground, "registered", c.registry.Len())

	c.post(func() { c.runGate(req, permission) })
}

func (c *Coordinator) reject(req *model.ActiveRequest, err *model.Error) {
	c.logRequest(req, log.RequestRejected, err.Message)
	c.logger.Warn("request rejected", "kind", req.Kind, "region", req.Region.Identifier, "error", err)
	req.Deliver(model.Failure[model.Update](err))
}

func (c *Coordinator) runGate(req *model.ActiveRequest, permission model.Permission) {
	if !c.registry.Contains(req) {
		c.logRequest(req, log.RequestGateDropped, "removed before gate")
		return
	}

	c.gate.Run(model.StatusRequestFor(req.Kind, permission), regionOf(req),
		func() {
			if !c.registry.Contains(req) {
				c.logRequest(req, log.RequestGateDropped, "removed while authorizing")
				return
			}
			delete(c.held, req)
			c.startRequest(req)
		},
		func(err *model.Error) {
			if !c.registry.Contains(req) {
				c.logRequest(req, log.RequestGateDropped, "removed while authorizing")
				return
			}
			if err.Fatal {
				c.held[req] = holdFatal
			} else {
				delete(c.held, req)
			}
			c.logRequest(req, log.RequestGateFailed, err.Error())
			req.Deliver(model.Failure[model.Update](err))
		},
	)
}

func (c *Coordinator) remove(req *model.ActiveRequest) {
	if !c.registry.Contains(req) {
		return
	}
	c.stopRequest(req)
	c.registry.Remove(req)
	delete(c.held, req)
	c.logRequest(req, log.RequestRemoved, "")
}

func (c *Coordinator) startRequest(req *model.ActiveRequest) {
	if !c.sessions.Connected() {
		c.logRequest(req, log.RequestDeferred, "scanner not connected")
		return
	}

	if err := c.sessions.EnsureStarted(req); err != nil {
		c.logger.Warn("session start failed", "key", req.Key(), "error", err)
		req.Deliver(model.Failure[model.Update](model.RuntimeError(regionOf(req), err.Error(), false)))
		return
	}
	req.SetRunning(true)
	c.logRequest(req, log.RequestStarted, "")
}

func (c *Coordinator) stopRequest(req *model.ActiveRequest) {
	wasRunning := req.IsRunning()
	req.SetRunning(false)
	if !c.sessions.Connected() || !wasRunning {
		return
	}

	if err := c.sessions.EnsureStopped(req); err != nil {
		c.logger.Warn("session stop failed", "key", req.Key(), "error", err)
	}
	c.logRequest(req, log.RequestStopped, "")
}

// hold marks a request that lifecycle replays must not start.
type hold uint8

const (
	// holdGatePending: the request has not passed its gate yet.
	holdGatePending hold = iota + 1
	// holdFatal: the gate failed with a configuration error.
	holdFatal
)

// eligible reports whether req may be (re)started outside its own gate.
func (c *Coordinator) eligible(req *model.ActiveRequest) bool {
	if req.IsRunning() {
		return false
	}
	_, held := c.held[req]
	return !held
}

func (c *Coordinator) pause() {
	c.paused = true
	c.logLifecycle("paused")
	for _, req := range c.registry.Filter(func(r *model.ActiveRequest) bool {
		return r.IsRunning() && !r.InBackground
	}) {
		c.stopRequest(req)
	}
}

func (c *Coordinator) resume() {
	c.paused = false
	c.logLifecycle("resumed")
	for _, req := range c.registry.Filter(c.eligible) {
		c.startRequest(req)
	}
}

func (c *Coordinator) connected() {
	c.sessions.MarkConnected()
	c.dispatching = true
	c.logger.Info("scanner connected", "registered", c.registry.Len())

	for _, req := range c.registry.Filter(func(r *model.ActiveRequest) bool {
		return c.eligible(r) && (!c.paused || r.InBackground)
	}) {
		c.startRequest(req)
	}
}

func regionOf(req *model.ActiveRequest) *model.Region {
	region := req.Region
	return &region
}

func (c *Coordinator) logRequest(req *model.ActiveRequest, action log.RequestAction, reason string) {
	c.eventLog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerCoordinator,
		Category:  log.CategoryRequest,
		RegionID:  req.Region.Identifier,
		Request: &log.RequestEvent{
			Action:       action,
			Kind:         req.Kind.String(),
			InBackground: req.InBackground,
			Reason:       reason,
			Registered:   c.registry.Len(),
		},
	})
}

func (c *Coordinator) logLifecycle(state string) {
	c.eventLog.Log(log.Event{
		Timestamp:   time.Now(),
		Layer:       log.LayerCoordinator,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityLifecycle, NewState: state},
	})
}

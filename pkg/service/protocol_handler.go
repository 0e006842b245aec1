package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/authority"
	"github.com/beaconrelay/beaconrelay/pkg/coordinator"
	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/wire"
)

// HandleRequest serves one decoded request. Every request gets exactly one
// response; requestPermission answers once the authority decides.
func (cs *ClientSession) HandleRequest(req *wire.Request, received time.Time) {
	if !req.Method.IsValid() {
		cs.fail(req, received, wire.StatusInvalidMethod, fmt.Sprintf("unknown method %q", req.Method))
		return
	}

	switch req.Method {
	case wire.MethodCheckStatus:
		cs.handleCheckStatus(req, received)
	case wire.MethodRequestPermission:
		cs.handleRequestPermission(req, received)
	case wire.MethodStartRanging:
		cs.handleSubscribe(req, received, model.KindRanging)
	case wire.MethodStartMonitoring:
		cs.handleSubscribe(req, received, model.KindMonitoring)
	case wire.MethodCancel:
		cs.handleCancel(req, received)
	case wire.MethodPause:
		cs.handleLifecycle(req, received, cs.service.config.Coordinator.Pause)
	case wire.MethodResume:
		cs.handleLifecycle(req, received, cs.service.config.Coordinator.Resume)
	case wire.MethodConfigure:
		cs.handleConfigure(req, received)
	case wire.MethodSetAuthorization:
		cs.handleSetAuthorization(req, received)
	case wire.MethodAddBackgroundCallback:
		cs.handleAddBackgroundCallback(req, received)
	case wire.MethodStats:
		cs.handleStats(req, received)
	}
}

func (cs *ClientSession) handleCheckStatus(req *wire.Request, received time.Time) {
	var sr model.StatusRequest
	if len(req.Payload) > 0 {
		if err := req.DecodePayload(&sr); err != nil {
			cs.fail(req, received, wire.StatusInvalidParameter, err.Error())
			return
		}
	}
	cs.reply(req, received, cs.service.config.Coordinator.CheckStatus(sr))
}

func (cs *ClientSession) handleRequestPermission(req *wire.Request, received time.Time) {
	var p wire.PermissionPayload
	if err := req.DecodePayload(&p); err != nil {
		cs.fail(req, received, wire.StatusInvalidParameter, err.Error())
		return
	}

	err := cs.service.config.Coordinator.RequestPermission(p.Permission, func(res model.Result[bool]) {
		cs.reply(req, received, res)
	})
	if err != nil {
		cs.fail(req, received, statusFor(err), err.Error())
	}
}

func (cs *ClientSession) handleSubscribe(req *wire.Request, received time.Time, kind model.Kind) {
	var p wire.SubscribePayload
	if err := req.DecodePayload(&p); err != nil {
		cs.fail(req, received, wire.StatusInvalidParameter, err.Error())
		return
	}

	st := &stream{method: req.Method}
	st.req = model.NewActiveRequest(kind, p.Region, p.InBackground, func(res model.Result[model.Update]) {
		cs.emit(st.id, res)
		if res.Err != nil && res.Err.Fatal {
			// Callbacks run on the coordinator loop; Remove must not.
			go cs.closeStream(st.id)
		}
	})
	if !cs.openStream(req, received, st, nil) {
		return
	}

	cs.logger.Debug("subscription opened", "stream", st.id, "kind", kind,
		"region", p.Region.Identifier, "background", p.InBackground)
	if err := cs.service.config.Coordinator.Add(st.req, p.Permission); err != nil {
		region := p.Region
		cs.emit(st.id, model.Failure[model.Update](model.RuntimeError(&region, err.Error(), true)))
		cs.closeStream(st.id)
	}
}

func (cs *ClientSession) handleCancel(req *wire.Request, received time.Time) {
	var p wire.StreamPayload
	if err := req.DecodePayload(&p); err != nil {
		cs.fail(req, received, wire.StatusInvalidParameter, err.Error())
		return
	}
	if !cs.closeStream(p.StreamID) {
		cs.fail(req, received, wire.StatusUnknownStream, fmt.Sprintf("stream %d", p.StreamID))
		return
	}
	cs.logger.Debug("stream cancelled", "stream", p.StreamID)
	cs.reply(req, received, nil)
}

func (cs *ClientSession) handleLifecycle(req *wire.Request, received time.Time, fn func() error) {
	if err := fn(); err != nil {
		cs.fail(req, received, statusFor(err), err.Error())
		return
	}
	cs.reply(req, received, nil)
}

func (cs *ClientSession) handleConfigure(req *wire.Request, received time.Time) {
	var settings model.Settings
	if err := req.DecodePayload(&settings); err != nil {
		cs.fail(req, received, wire.StatusInvalidParameter, err.Error())
		return
	}
	if err := cs.service.config.Coordinator.Configure(settings); err != nil {
		cs.fail(req, received, statusFor(err), err.Error())
		return
	}
	cs.reply(req, received, nil)
}

func (cs *ClientSession) handleSetAuthorization(req *wire.Request, received time.Time) {
	setter := cs.service.config.Authority
	if setter == nil {
		cs.fail(req, received, wire.StatusUnsupported, "authorization is not settable on this relay")
		return
	}
	var p wire.AuthorizationPayload
	if err := req.DecodePayload(&p); err != nil {
		cs.fail(req, received, wire.StatusInvalidParameter, err.Error())
		return
	}
	if err := setter.Set(p.Status); err != nil {
		cs.fail(req, received, statusFor(err), err.Error())
		return
	}
	cs.logger.Info("authorization set by client", "status", p.Status)
	cs.reply(req, received, nil)
}

func (cs *ClientSession) handleAddBackgroundCallback(req *wire.Request, received time.Time) {
	st := &stream{method: req.Method}
	cs.openStream(req, received, st, func() error {
		remove, err := cs.service.config.Coordinator.AddBackgroundCallback(func(ev coordinator.BackgroundEvent) {
			cs.emit(st.id, wire.BackgroundPayload{Type: string(ev.Type), Region: ev.Region, State: ev.State})
		})
		if err != nil {
			return err
		}
		st.removeCallback = remove
		return nil
	})
}

func (cs *ClientSession) handleStats(req *wire.Request, received time.Time) {
	st, err := cs.service.config.Coordinator.Stats()
	if err != nil {
		cs.fail(req, received, statusFor(err), err.Error())
		return
	}
	cs.reply(req, received, wire.StatsPayload{
		Registered:         st.Registered,
		Running:            st.Running,
		Sessions:           st.Sessions,
		PendingPermissions: st.PendingPermissions,
		Connected:          st.Connected,
		Paused:             st.Paused,
		Streams:            cs.service.StreamCount(),
	})
}

// statusFor maps a service error to a response status.
func statusFor(err error) wire.Status {
	switch {
	case errors.Is(err, coordinator.ErrNotRunning):
		return wire.StatusUnavailable
	case errors.Is(err, coordinator.ErrNoBackgroundNotifier):
		return wire.StatusUnsupported
	case errors.Is(err, authority.ErrInvalidStatus):
		return wire.StatusInvalidParameter
	case errors.Is(err, authority.ErrClosed):
		return wire.StatusUnavailable
	default:
		return wire.StatusInternal
	}
}

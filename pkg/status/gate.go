package status

import (
	"log/slog"
	"time"

	"github.com/beaconrelay/beaconrelay/pkg/log"
	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// MissingDeclarationMessage is reported when a permission level is required
// but the host never declared a usage justification for it.
const MissingDeclarationMessage = "missing location usage description for the requested permission level; declare it in the authority configuration"

// Environment reports device capabilities.
type Environment interface {
	LocationServicesEnabled() bool
	RangingAvailable() bool
	MonitoringAvailable() bool
}

// Authority is the permission authority.
type Authority interface {
	// Status returns the current authorization status.
	Status() model.AuthorizationStatus

	// Declared reports whether a usage justification exists for level.
	Declared(level model.Permission) bool

	// Prompt asks the user for the given level. The decision arrives
	// through the Listen handler.
	Prompt(level model.Permission) error

	// Listen subscribes to authorization changes and returns an
	// unsubscribe function.
	Listen(handler func(model.AuthorizationStatus)) (unsubscribe func())
}

// Verdict is the outcome of one evaluation.
type Verdict uint8

const (
	Ready Verdict = iota
	NeedsAuthorization
	Blocked
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Ready:
		return "ready"
	case NeedsAuthorization:
		return "needs-authorization"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Verdict Verdict

	// Permission is the level to request when Verdict is NeedsAuthorization.
	Permission model.Permission

	// Err is the failure to report when the gate cannot be passed.
	// Set for Blocked, and for NeedsAuthorization as the failure to use
	// when no prompt is attempted.
	Err *model.Error
}

// Config configures a Gate.
type Config struct {
	Environment Environment
	Authority   Authority
	Logger      *slog.Logger
	EventLog    log.Logger
}

type waiter struct {
	level    model.Permission
	region   *model.Region
	onResult func(*model.Error)
}

// Gate evaluates StatusRequests and queues permission waiters.
// It is not safe for concurrent use.
type Gate struct {
	env      Environment
	auth     Authority
	logger   *slog.Logger
	eventLog log.Logger

	waiters   []waiter
	prompting bool
}

// New creates a Gate.
func New(cfg Config) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		env:      cfg.Environment,
		auth:     cfg.Authority,
		logger:   logger,
		eventLog: log.OrNoop(cfg.EventLog),
	}
}

// Evaluate checks location services, the requested capabilities and the
// authorization status, in that order.
func (g *Gate) Evaluate(req model.StatusRequest, region *model.Region) Evaluation {
	if req.Ranging || req.Monitoring {
		if !g.env.LocationServicesEnabled() {
			return blocked(model.NewError(model.ErrorServiceDisabled, region))
		}
		if req.Ranging && !g.env.RangingAvailable() {
			return blocked(model.NewError(model.ErrorRangingUnavailable, region))
		}
		if req.Monitoring && !g.env.MonitoringAvailable() {
			return blocked(model.NewError(model.ErrorMonitoringUnavailable, region))
		}
	}

	if req.Permission == model.PermissionNone {
		return Evaluation{Verdict: Ready}
	}

	switch g.auth.Status() {
	case model.AuthorizationUndetermined:
		if !g.auth.Declared(req.Permission) {
			return blocked(model.RuntimeError(region, MissingDeclarationMessage, true))
		}
		return Evaluation{
			Verdict:    NeedsAuthorization,
			Permission: req.Permission,
			Err:        model.NewError(model.ErrorPermissionDenied, region),
		}
	case model.AuthorizationDenied:
		return blocked(model.NewError(model.ErrorPermissionDenied, region))
	case model.AuthorizationRestricted:
		return blocked(model.NewError(model.ErrorServiceDisabled, region))
	case model.AuthorizationWhenInUse:
		if req.Permission == model.PermissionAlways {
			return Evaluation{
				Verdict:    NeedsAuthorization,
				Permission: req.Permission,
				Err:        model.NewError(model.ErrorPermissionDenied, region),
			}
		}
	}
	return Evaluation{Verdict: Ready}
}

func blocked(err *model.Error) Evaluation {
	return Evaluation{Verdict: Blocked, Err: err}
}

// Check evaluates req without prompting.
func (g *Gate) Check(req model.StatusRequest) model.Result[bool] {
	ev := g.Evaluate(req, nil)
	if ev.Verdict == Ready {
		return model.Success(true, nil)
	}
	return model.Failure[bool](ev.Err)
}

// Run evaluates req and calls exactly one of onReady or onFailure, either
// immediately or once the authority resolves a prompt.
func (g *Gate) Run(req model.StatusRequest, region *model.Region, onReady func(), onFailure func(*model.Error)) {
	ev := g.Evaluate(req, region)
	switch ev.Verdict {
	case Ready:
		onReady()
	case NeedsAuthorization:
		g.RequestAuthorization(ev.Permission, region, func(err *model.Error) {
			if err != nil {
				onFailure(err)
				return
			}
			onReady()
		})
	default:
		onFailure(ev.Err)
	}
}

// RequestAuthorization queues a waiter and prompts the authority unless a
// prompt is already outstanding. onResult receives nil when the next
// authorization change grants access.
func (g *Gate) RequestAuthorization(level model.Permission, region *model.Region, onResult func(*model.Error)) {
	g.waiters = append(g.waiters, waiter{level: level, region: region, onResult: onResult})
	g.logPermission(log.PermissionQueued, level.String(), "")

	if g.prompting {
		return
	}
	g.prompting = true
	g.logPermission(log.PermissionPrompted, level.String(), "")

	if err := g.auth.Prompt(level); err != nil {
		g.logger.Warn("permission prompt failed", "level", level, "error", err)
		g.logPermission(log.PermissionPromptFailed, level.String(), "")
		g.prompting = false
		for _, w := range g.detach() {
			w.onResult(model.RuntimeError(w.region, err.Error(), false))
		}
	}
}

// Resolve fires every queued waiter with the new status. The queue is
// detached before any waiter runs, so waiters queued by a callback wait
// for the next change.
func (g *Gate) Resolve(status model.AuthorizationStatus) {
	g.prompting = false
	waiters := g.detach()
	g.logPermission(log.PermissionResolved, "", status.String())
	if len(waiters) == 0 {
		return
	}

	g.logger.Debug("authorization resolved", "status", status, "waiters", len(waiters))
	for _, w := range waiters {
		if status.IsGranted() {
			w.onResult(nil)
		} else {
			w.onResult(model.NewError(model.ErrorPermissionDenied, w.region))
		}
	}
}

// Pending returns the number of queued waiters.
func (g *Gate) Pending() int {
	return len(g.waiters)
}

// Prompting reports whether a prompt is outstanding.
func (g *Gate) Prompting() bool {
	return g.prompting
}

func (g *Gate) detach() []waiter {
	w := g.waiters
	g.waiters = nil
	return w
}

func (g *Gate) logPermission(action log.PermissionAction, level, status string) {
	g.eventLog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerGate,
		Category:  log.CategoryPermission,
		Permission: &log.PermissionEvent{
			Action:  action,
			Level:   level,
			Status:  status,
			Waiters: len(g.waiters),
		},
	})
}

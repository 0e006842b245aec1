package service

import (
	"github.com/beaconrelay/beaconrelay/pkg/coordinator"
	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// Coordinator is the part of coordinator.Coordinator the service uses.
type Coordinator interface {
	Add(req *model.ActiveRequest, permission model.Permission) error
	Remove(req *model.ActiveRequest) error
	Pause() error
	Resume() error
	CheckStatus(req model.StatusRequest) model.Result[bool]
	RequestPermission(level model.Permission, cb func(model.Result[bool])) error
	Configure(settings model.Settings) error
	AddBackgroundCallback(fn func(coordinator.BackgroundEvent)) (remove func(), err error)
	Stats() (coordinator.Stats, error)
}

// AuthorizationSetter records an authorization decision.
// Implemented by authority.Authority.
type AuthorizationSetter interface {
	Set(status model.AuthorizationStatus) error
}

// Compile-time interface satisfaction check.
var _ Coordinator = (*coordinator.Coordinator)(nil)

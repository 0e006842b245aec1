package wire

import (
	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// Method names a relay operation.
type Method string

const (
	// MethodCheckStatus evaluates a StatusRequest without prompting.
	// Payload: model.StatusRequest. Response: model.Result[bool].
	MethodCheckStatus Method = "checkStatus"

	// MethodRequestPermission asks for a permission level. The response is
	// sent once the authority decides.
	// Payload: PermissionPayload. Response: model.Result[bool].
	MethodRequestPermission Method = "requestPermission"

	// MethodStartRanging opens a ranging stream.
	// Payload: SubscribePayload. Response: StreamPayload.
	// Events: model.Result[model.Update].
	MethodStartRanging Method = "startRanging"

	// MethodStartMonitoring opens a monitoring stream.
	// Payload: SubscribePayload. Response: StreamPayload.
	// Events: model.Result[model.Update].
	MethodStartMonitoring Method = "startMonitoring"

	// MethodCancel closes a stream. Payload: StreamPayload.
	MethodCancel Method = "cancel"

	// MethodPause and MethodResume drive the foreground lifecycle.
	MethodPause  Method = "pause"
	MethodResume Method = "resume"

	// MethodConfigure applies runtime settings. Payload: model.Settings.
	MethodConfigure Method = "configure"

	// MethodSetAuthorization sets the authority decision on relays whose
	// prompt policy is manual. Payload: AuthorizationPayload.
	MethodSetAuthorization Method = "setAuthorization"

	// MethodAddBackgroundCallback opens a stream of background
	// monitoring transitions. Response: StreamPayload.
	// Events: BackgroundPayload.
	MethodAddBackgroundCallback Method = "addBackgroundCallback"

	// MethodStats returns a StatsPayload.
	MethodStats Method = "stats"
)

var methods = map[Method]bool{
	MethodCheckStatus:           true,
	MethodRequestPermission:     true,
	MethodStartRanging:          true,
	MethodStartMonitoring:       true,
	MethodCancel:                true,
	MethodPause:                 true,
	MethodResume:                true,
	MethodConfigure:             true,
	MethodSetAuthorization:      true,
	MethodAddBackgroundCallback: true,
	MethodStats:                 true,
}

// IsValid returns true for known methods.
func (m Method) IsValid() bool {
	return methods[m]
}

// PermissionPayload is the payload of requestPermission.
type PermissionPayload struct {
	Permission model.Permission `cbor:"1,keyasint"`
}

// SubscribePayload is the payload of startRanging and startMonitoring.
type SubscribePayload struct {
	Region       model.Region     `cbor:"1,keyasint"`
	Permission   model.Permission `cbor:"2,keyasint,omitempty"`
	InBackground bool             `cbor:"3,keyasint,omitempty"`
}

// StreamPayload identifies a stream.
type StreamPayload struct {
	StreamID uint32 `cbor:"1,keyasint"`
}

// AuthorizationPayload is the payload of setAuthorization.
type AuthorizationPayload struct {
	Status model.AuthorizationStatus `cbor:"1,keyasint"`
}

// BackgroundPayload is one background monitoring transition.
type BackgroundPayload struct {
	Type   string                `cbor:"1,keyasint"`
	Region model.Region          `cbor:"2,keyasint"`
	State  model.MonitoringState `cbor:"3,keyasint"`
}

// StatsPayload is the response of stats.
type StatsPayload struct {
	Registered         int  `cbor:"1,keyasint"`
	Running            int  `cbor:"2,keyasint"`
	Sessions           int  `cbor:"3,keyasint"`
	PendingPermissions int  `cbor:"4,keyasint"`
	Connected          bool `cbor:"5,keyasint"`
	Paused             bool `cbor:"6,keyasint"`
	Streams            int  `cbor:"7,keyasint"`
}

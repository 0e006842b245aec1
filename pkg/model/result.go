package model

import "fmt"

// ErrorKind classifies a failure reported to a client.
type ErrorKind uint8

const (
	ErrorPermissionDenied      ErrorKind = 1
	ErrorServiceDisabled       ErrorKind = 2
	ErrorRangingUnavailable    ErrorKind = 3
	ErrorMonitoringUnavailable ErrorKind = 4
	ErrorRuntime               ErrorKind = 5
)

// String returns the error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorPermissionDenied:
		return "permissionDenied"
	case ErrorServiceDisabled:
		return "serviceDisabled"
	case ErrorRangingUnavailable:
		return "rangingUnavailable"
	case ErrorMonitoringUnavailable:
		return "monitoringUnavailable"
	case ErrorRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Error is a failure delivered to a client.
type Error struct {
	Kind    ErrorKind `cbor:"1,keyasint"`
	Region  *Region   `cbor:"2,keyasint,omitempty"`
	Message string    `cbor:"3,keyasint,omitempty"`

	// Fatal marks configuration errors that must not be retried.
	Fatal bool `cbor:"4,keyasint,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Region != nil {
		s += fmt.Sprintf(" [%s]", e.Region.Identifier)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// NewError returns a non-fatal error of the given kind.
func NewError(kind ErrorKind, region *Region) *Error {
	return &Error{Kind: kind, Region: region}
}

// RuntimeError returns a runtime error with a message.
func RuntimeError(region *Region, message string, fatal bool) *Error {
	return &Error{Kind: ErrorRuntime, Region: region, Message: message, Fatal: fatal}
}

// MonitoringState is the payload of a monitoring transition.
type MonitoringState uint8

const (
	MonitoringUnknown       MonitoringState = 0
	MonitoringEnterOrInside MonitoringState = 1
	MonitoringExitOrOutside MonitoringState = 2
)

// String returns the state name.
func (s MonitoringState) String() string {
	switch s {
	case MonitoringEnterOrInside:
		return "enterOrInside"
	case MonitoringExitOrOutside:
		return "exitOrOutside"
	default:
		return "unknown"
	}
}

// Update is the payload delivered to a subscription: a beacon list for
// ranging requests, a transition for monitoring requests.
type Update struct {
	Beacons []Beacon        `cbor:"1,keyasint,omitempty"`
	State   MonitoringState `cbor:"2,keyasint,omitempty"`
}

// Result is either a success carrying a value or a failure carrying an *Error.
type Result[T any] struct {
	Value  T       `cbor:"1,keyasint,omitempty"`
	Region *Region `cbor:"2,keyasint,omitempty"`
	Err    *Error  `cbor:"3,keyasint,omitempty"`
}

// Success returns a successful result.
func Success[T any](value T, region *Region) Result[T] {
	return Result[T]{Value: value, Region: region}
}

// Failure returns a failed result. The region is taken from the error.
func Failure[T any](err *Error) Result[T] {
	return Result[T]{Region: err.Region, Err: err}
}

// IsSuccess returns true if the result carries no error.
func (r Result[T]) IsSuccess() bool {
	return r.Err == nil
}

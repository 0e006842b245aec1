package wire

import (
	"errors"
	"fmt"
)

// Errors returned by the codec.
var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrEmptyPayload  = errors.New("empty payload")
)

// Status is a protocol-level response status.
type Status uint8

const (
	// StatusSuccess indicates the method was executed. Service failures
	// are reported inside the payload.
	StatusSuccess Status = 0

	// StatusInvalidMethod indicates an unknown method.
	StatusInvalidMethod Status = 1

	// StatusInvalidParameter indicates a malformed payload.
	StatusInvalidParameter Status = 2

	// StatusUnknownStream indicates a stream ID that is not open.
	StatusUnknownStream Status = 3

	// StatusUnsupported indicates the relay is not configured for the
	// method, e.g. background callbacks without a background notifier.
	StatusUnsupported Status = 4

	// StatusUnavailable indicates the relay is shutting down.
	StatusUnavailable Status = 5

	// StatusInternal indicates an unexpected relay failure.
	StatusInternal Status = 6
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidMethod:
		return "INVALID_METHOD"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusUnknownStream:
		return "UNKNOWN_STREAM"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusUnavailable:
		return "UNAVAILABLE"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true for StatusSuccess.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// StatusError is a failed response.
type StatusError struct {
	Status  Status
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

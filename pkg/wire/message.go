package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys shared by all message types.
const (
	KeyMessageID = 1
	KeyMethod    = 2
	KeyPayload   = 3
	KeyStatus    = 4
	KeyStreamID  = 5
	KeyControl   = 6
)

// StreamMessageID is the messageId of every stream event.
const StreamMessageID uint32 = 0

// Request is a method call from a client.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32, never 0
//	  2: method,     // string
//	  3: payload     // method-specific
//	}
type Request struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Method    Method          `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == StreamMessageID {
		return fmt.Errorf("messageId 0 is reserved for stream events")
	}
	if !r.Method.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, r.Method)
	}
	return nil
}

// DecodePayload decodes the request payload into v.
func (r *Request) DecodePayload(v any) error {
	return decodePayload(r.Payload, v)
}

// Response answers a Request.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32, matches the request
//	  3: payload,    // method-specific, or ErrorPayload
//	  4: status      // uint8
//	}
type Response struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	Status    Status          `cbor:"4,keyasint"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// DecodePayload decodes the response payload into v.
func (r *Response) DecodePayload(v any) error {
	return decodePayload(r.Payload, v)
}

// Err returns nil for successful responses and a *StatusError otherwise.
func (r *Response) Err() error {
	if r.IsSuccess() {
		return nil
	}
	var p ErrorPayload
	_ = r.DecodePayload(&p)
	return &StatusError{Status: r.Status, Message: p.Message}
}

// StreamEvent delivers one item of an open stream.
//
// CBOR encoding:
//
//	{
//	  1: 0,         // messageId 0 marks a stream event
//	  3: payload,   // stream-specific
//	  5: streamId   // uint32
//	}
type StreamEvent struct {
	StreamID uint32          `cbor:"5,keyasint"`
	Payload  cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// DecodePayload decodes the event payload into v.
func (e *StreamEvent) DecodePayload(v any) error {
	return decodePayload(e.Payload, v)
}

// ControlMessage is a transport-level control message.
type ControlMessage struct {
	Type     ControlMessageType `cbor:"6,keyasint"`
	Sequence uint32             `cbor:"7,keyasint,omitempty"`
}

// ControlMessageType is the kind of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}

// ErrorPayload carries the message of a failed response.
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

func decodePayload(raw cbor.RawMessage, v any) error {
	if len(raw) == 0 {
		return ErrEmptyPayload
	}
	if err := Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

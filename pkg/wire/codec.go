package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for relay messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for relay messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

func marshalPayload(payload any) (cbor.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// NewRequest builds a request with an encoded payload.
func NewRequest(messageID uint32, method Method, payload any) (*Request, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Request{MessageID: messageID, Method: method, Payload: raw}, nil
}

// NewResponse builds a response with an encoded payload.
func NewResponse(messageID uint32, status Status, payload any) (*Response, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Response{MessageID: messageID, Status: status, Payload: raw}, nil
}

// NewErrorResponse builds a failed response carrying message.
func NewErrorResponse(messageID uint32, status Status, message string) *Response {
	resp, err := NewResponse(messageID, status, ErrorPayload{Message: message})
	if err != nil {
		return &Response{MessageID: messageID, Status: status}
	}
	return resp
}

// NewStreamEvent builds a stream event with an encoded payload.
func NewStreamEvent(streamID uint32, payload any) (*StreamEvent, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &StreamEvent{StreamID: streamID, Payload: raw}, nil
}

// EncodeRequest encodes a request message to CBOR bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(req)
}

// DecodeRequest decodes CBOR bytes into a request message.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response message to CBOR bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Marshal(resp)
}

// DecodeResponse decodes CBOR bytes into a response message.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// streamWire is the on-wire form of a StreamEvent, including messageId 0.
type streamWire struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	StreamID  uint32          `cbor:"5,keyasint"`
}

// EncodeStreamEvent encodes a stream event to CBOR bytes.
func EncodeStreamEvent(ev *StreamEvent) ([]byte, error) {
	return Marshal(streamWire{
		MessageID: StreamMessageID,
		Payload:   ev.Payload,
		StreamID:  ev.StreamID,
	})
}

// DecodeStreamEvent decodes CBOR bytes into a stream event.
func DecodeStreamEvent(data []byte) (*StreamEvent, error) {
	var w streamWire
	if err := Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode stream event: %w", err)
	}
	if w.MessageID != StreamMessageID {
		return nil, fmt.Errorf("not a stream event: messageId=%d", w.MessageID)
	}
	return &StreamEvent{StreamID: w.StreamID, Payload: w.Payload}, nil
}

// EncodeControlMessage encodes a control message (ping/pong/close) to CBOR bytes.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	return Marshal(msg)
}

// DecodeControlMessage decodes CBOR bytes into a control message.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	return &msg, nil
}

// MessageType represents the type of a decoded message.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRequest
	MessageTypeResponse
	MessageTypeStream
	MessageTypeControl
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "request"
	case MessageTypeResponse:
		return "response"
	case MessageTypeStream:
		return "stream"
	case MessageTypeControl:
		return "control"
	default:
		return "unknown"
	}
}

// PeekMessageType examines CBOR data to determine the message type
// without decoding the payload.
//
//   - Control: key 6 present
//   - Stream: messageId (key 1) = 0
//   - Request: method (key 2) present
//   - Response: otherwise
func PeekMessageType(data []byte) (MessageType, error) {
	var peek struct {
		MessageID *uint32 `cbor:"1,keyasint"`
		Method    string  `cbor:"2,keyasint"`
		Control   uint8   `cbor:"6,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageTypeUnknown, fmt.Errorf("failed to peek message: %w", err)
	}

	switch {
	case peek.Control != 0:
		return MessageTypeControl, nil
	case peek.MessageID == nil:
		return MessageTypeUnknown, fmt.Errorf("message without messageId")
	case *peek.MessageID == StreamMessageID:
		return MessageTypeStream, nil
	case peek.Method != "":
		return MessageTypeRequest, nil
	default:
		return MessageTypeResponse, nil
	}
}

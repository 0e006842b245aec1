package log

import (
	"time"
)

// Event represents a captured event at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the client connection (UUID), if any.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow for transport and wire events.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RegionID is the region identifier the event concerns, if any.
	RegionID string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
	Request     *RequestEvent     `cbor:"15,keyasint,omitempty"`
	Session     *SessionEvent     `cbor:"16,keyasint,omitempty"`
	Permission  *PermissionEvent  `cbor:"17,keyasint,omitempty"`
	Dispatch    *DispatchEvent    `cbor:"18,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes, connections).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerCoordinator is the request registry and dispatcher.
	LayerCoordinator Layer = 2
	// LayerSession is the hardware session manager.
	LayerSession Layer = 3
	// LayerGate is the status gate and permission handshake.
	LayerGate Layer = 4
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerCoordinator:
		return "COORDINATOR"
	case LayerSession:
		return "SESSION"
	case LayerGate:
		return "GATE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryMessage    Category = 0
	CategoryControl    Category = 1
	CategoryState      Category = 2
	CategoryError      Category = 3
	CategoryRequest    Category = 4
	CategorySession    Category = 5
	CategoryPermission Category = 6
	CategoryDispatch   Category = 7
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryRequest:
		return "REQUEST"
	case CategorySession:
		return "SESSION"
	case CategoryPermission:
		return "PERMISSION"
	case CategoryDispatch:
		return "DISPATCH"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded wire message.
type MessageEvent struct {
	// Type distinguishes request/response/stream event.
	Type MessageType `cbor:"1,keyasint"`

	// MessageID correlates request/response pairs (0 for stream events).
	MessageID uint32 `cbor:"2,keyasint"`

	// Method is the called method name (requests only).
	Method string `cbor:"3,keyasint,omitempty"`

	// Status is the response status name (responses only).
	Status string `cbor:"4,keyasint,omitempty"`

	// StreamID identifies the subscription stream (stream events only).
	StreamID uint32 `cbor:"5,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send.
	ProcessingTime *time.Duration `cbor:"6,keyasint,omitempty"`
}

// MessageType distinguishes request/response/stream event.
type MessageType uint8

const (
	MessageTypeRequest  MessageType = 0
	MessageTypeResponse MessageType = 1
	MessageTypeStream   MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeStream:
		return "STREAM"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection and coordinator lifecycle changes.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection is a client connection.
	StateEntityConnection StateEntity = 0
	// StateEntityScanner is the scanning service binding.
	StateEntityScanner StateEntity = 1
	// StateEntityLifecycle is the host foreground/background state.
	StateEntityLifecycle StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityScanner:
		return "SCANNER"
	case StateEntityLifecycle:
		return "LIFECYCLE"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	ControlMsgPing  ControlMsgType = 0
	ControlMsgPong  ControlMsgType = 1
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Kind is the client-facing error kind name, if any.
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// RequestAction is a subscription lifecycle step.
type RequestAction uint8

const (
	RequestRegistered RequestAction = iota
	RequestRejected
	RequestRemoved
	RequestStarted
	RequestStopped
	RequestDeferred
	RequestGateFailed
	RequestGateDropped
)

// String returns the action name.
func (a RequestAction) String() string {
	switch a {
	case RequestRegistered:
		return "REGISTERED"
	case RequestRejected:
		return "REJECTED"
	case RequestRemoved:
		return "REMOVED"
	case RequestStarted:
		return "STARTED"
	case RequestStopped:
		return "STOPPED"
	case RequestDeferred:
		return "DEFERRED"
	case RequestGateFailed:
		return "GATE_FAILED"
	case RequestGateDropped:
		return "GATE_DROPPED"
	default:
		return "UNKNOWN"
	}
}

// RequestEvent captures one subscription lifecycle step.
type RequestEvent struct {
	Action       RequestAction `cbor:"1,keyasint"`
	Kind         string        `cbor:"2,keyasint"`
	InBackground bool          `cbor:"3,keyasint,omitempty"`
	Reason       string        `cbor:"4,keyasint,omitempty"`
	Registered   int           `cbor:"5,keyasint,omitempty"`
}

// SessionAction is a scanner call issued by the session manager.
type SessionAction uint8

const (
	SessionStart SessionAction = iota
	SessionStop
	SessionShared
)

// String returns the action name.
func (a SessionAction) String() string {
	switch a {
	case SessionStart:
		return "START"
	case SessionStop:
		return "STOP"
	case SessionShared:
		return "SHARED"
	default:
		return "UNKNOWN"
	}
}

// SessionEvent captures a scanner start/stop decision.
type SessionEvent struct {
	Action SessionAction `cbor:"1,keyasint"`

	// Path is the scanner path used: RANGING, MONITORING or BACKGROUND.
	Path string `cbor:"2,keyasint"`

	// Key is the session key in "<kind>:<region>" form.
	Key string `cbor:"3,keyasint"`

	// Error is set when the scanner call failed.
	Error string `cbor:"4,keyasint,omitempty"`
}

// PermissionAction is a step of the permission handshake.
type PermissionAction uint8

const (
	PermissionQueued PermissionAction = iota
	PermissionPrompted
	PermissionResolved
	PermissionPromptFailed
)

// String returns the action name.
func (a PermissionAction) String() string {
	switch a {
	case PermissionQueued:
		return "QUEUED"
	case PermissionPrompted:
		return "PROMPTED"
	case PermissionResolved:
		return "RESOLVED"
	case PermissionPromptFailed:
		return "PROMPT_FAILED"
	default:
		return "UNKNOWN"
	}
}

// PermissionEvent captures a permission handshake step.
type PermissionEvent struct {
	Action  PermissionAction `cbor:"1,keyasint"`
	Level   string           `cbor:"2,keyasint,omitempty"`
	Status  string           `cbor:"3,keyasint,omitempty"`
	Waiters int              `cbor:"4,keyasint,omitempty"`
}

// DispatchEvent captures the fan-out of one scanner event.
type DispatchEvent struct {
	Kind       string `cbor:"1,keyasint"`
	Recipients int    `cbor:"2,keyasint"`
	Beacons    int    `cbor:"3,keyasint,omitempty"`
	State      string `cbor:"4,keyasint,omitempty"`
	Failure    string `cbor:"5,keyasint,omitempty"`
}

// Summary returns a one-line description of the event payload.
func (e Event) Summary() string {
	switch {
	case e.Frame != nil:
		return "frame"
	case e.Message != nil:
		if e.Message.Method != "" {
			return e.Message.Type.String() + " " + e.Message.Method
		}
		return e.Message.Type.String()
	case e.StateChange != nil:
		return e.StateChange.Entity.String() + " " + e.StateChange.NewState
	case e.ControlMsg != nil:
		return e.ControlMsg.Type.String()
	case e.Error != nil:
		return "error: " + e.Error.Message
	case e.Request != nil:
		return e.Request.Kind + " " + e.Request.Action.String()
	case e.Session != nil:
		return e.Session.Path + " " + e.Session.Action.String()
	case e.Permission != nil:
		return "permission " + e.Permission.Action.String()
	case e.Dispatch != nil:
		return e.Dispatch.Kind + " dispatch"
	default:
		return "unknown"
	}
}

// Package wire defines the CBOR wire format of the beacon relay protocol.
//
// Messages use CBOR (RFC 8949) with integer keys and travel one per frame.
//
// # Message Types
//
//   - Request: client to relay; a method name and its payload
//   - Response: relay to client; a status and a method-specific payload
//   - StreamEvent: relay to client; one result of an open subscription
//     (messageId 0)
//   - ControlMessage: ping/pong/close, in either direction
//
// Results of the beacon service itself (permission denied, ranging
// unavailable and so on) are carried inside payloads as model.Result
// values. Response statuses only describe protocol-level outcomes.
package wire

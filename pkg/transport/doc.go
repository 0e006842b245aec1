// Package transport carries relay messages between clients and the relay.
//
// Two transports share one message layer:
//
//	┌────────────────────────────────┬────────────────────────────────┐
//	│          CBOR messages         │          CBOR messages         │
//	├────────────────────────────────┼────────────────────────────────┤
//	│  Length-prefix framing (4B BE) │   One binary WebSocket message │
//	├────────────────────────────────┼────────────────────────────────┤
//	│        TCP (optional TLS)      │     HTTP upgrade (optional TLS)│
//	└────────────────────────────────┴────────────────────────────────┘
//
// Server accepts both and hands each connection's messages to a handler
// in order. Outbound messages go through a bounded per-connection queue so
// senders never block; a client that falls behind is disconnected.
//
// Client correlates responses by message ID and routes stream events to
// per-stream channels. It keeps the connection alive with ping/pong
// control messages:
//   - Ping interval: 15 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
package transport

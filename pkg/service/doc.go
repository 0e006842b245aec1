// Package service serves the relay protocol on top of a coordinator.
//
// Each transport connection gets a ClientSession that maps relay methods
// onto coordinator operations and owns the streams the client opened.
// Subscription callbacks become stream events on the client's connection;
// closing the connection removes every subscription it registered.
package service

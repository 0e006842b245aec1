// Package status evaluates the preconditions for beacon scanning and runs
// the asynchronous permission handshake.
//
// A Gate is owned by a single execution context (the coordinator loop). It
// never mutates subscription state. Permission waiters queue in arrival
// order; at most one authority prompt is outstanding, and every queued
// waiter resolves on the next authorization change.
package status

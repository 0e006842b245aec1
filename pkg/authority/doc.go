// Package authority provides the relay's permission authority and device
// environment.
//
// The authority keeps the current authorization decision in a JSON state
// file so it survives restarts, and answers permission prompts according
// to a configured policy. With the manual policy a prompt stays pending
// until an operator sets the decision.
package authority

package authority

import (
	"fmt"

	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// Policy decides how prompts are answered.
type Policy string

const (
	// PolicyGrantAlways grants the requested level, up to always.
	PolicyGrantAlways Policy = "grant-always"

	// PolicyGrantWhenInUse grants when-in-use and declines upgrades to
	// always.
	PolicyGrantWhenInUse Policy = "grant-when-in-use"

	// PolicyDeny denies every prompt.
	PolicyDeny Policy = "deny"

	// PolicyManual leaves prompts pending until Set is called.
	PolicyManual Policy = "manual"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyGrantAlways, PolicyGrantWhenInUse, PolicyDeny, PolicyManual:
		return p, nil
	case "":
		return PolicyManual, nil
	}
	return "", fmt.Errorf("unknown prompt policy %q", s)
}

// decide returns the decision for a prompt at level given the current
// status. ok is false when the prompt stays pending.
func (p Policy) decide(level model.Permission, current model.AuthorizationStatus) (model.AuthorizationStatus, bool) {
	switch p {
	case PolicyGrantAlways:
		if level == model.PermissionAlways {
			return model.AuthorizationAlways, true
		}
		if current == model.AuthorizationAlways {
			return current, true
		}
		return model.AuthorizationWhenInUse, true
	case PolicyGrantWhenInUse:
		if current == model.AuthorizationAlways {
			return current, true
		}
		return model.AuthorizationWhenInUse, true
	case PolicyDeny:
		return model.AuthorizationDenied, true
	}
	return current, false
}

package model

// Permission is the authorization level a request needs.
type Permission uint8

const (
	// PermissionNone requests no authorization check.
	PermissionNone Permission = 0

	// PermissionWhenInUse allows scanning while the host app is in the foreground.
	PermissionWhenInUse Permission = 1

	// PermissionAlways allows scanning in the background as well.
	PermissionAlways Permission = 2
)

// String returns the permission name.
func (p Permission) String() string {
	switch p {
	case PermissionNone:
		return "none"
	case PermissionWhenInUse:
		return "when-in-use"
	case PermissionAlways:
		return "always"
	default:
		return "unknown"
	}
}

// ParsePermission parses a permission name as returned by String.
func ParsePermission(s string) (Permission, bool) {
	switch s {
	case "", "none":
		return PermissionNone, true
	case "when-in-use", "wheninuse", "in-use":
		return PermissionWhenInUse, true
	case "always":
		return PermissionAlways, true
	}
	return PermissionNone, false
}

// AuthorizationStatus is the current decision of the permission authority.
type AuthorizationStatus uint8

const (
	AuthorizationUndetermined AuthorizationStatus = iota
	AuthorizationDenied
	AuthorizationRestricted
	AuthorizationWhenInUse
	AuthorizationAlways
)

// String returns the status name.
func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationUndetermined:
		return "undetermined"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationWhenInUse:
		return "when-in-use"
	case AuthorizationAlways:
		return "always"
	default:
		return "unknown"
	}
}

// ParseAuthorizationStatus parses a status name as returned by String.
func ParseAuthorizationStatus(s string) (AuthorizationStatus, bool) {
	for st := AuthorizationUndetermined; st <= AuthorizationAlways; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return AuthorizationUndetermined, false
}

// IsGranted returns true for any granted variant.
func (s AuthorizationStatus) IsGranted() bool {
	return s == AuthorizationWhenInUse || s == AuthorizationAlways
}

// StatusRequest describes the preconditions to check for one validation pass.
type StatusRequest struct {
	Ranging    bool       `cbor:"1,keyasint,omitempty"`
	Monitoring bool       `cbor:"2,keyasint,omitempty"`
	Permission Permission `cbor:"3,keyasint,omitempty"`
}

// StatusRequestFor returns the status request used when activating a
// subscription of the given kind.
func StatusRequestFor(kind Kind, permission Permission) StatusRequest {
	return StatusRequest{
		Ranging:    kind == KindRanging,
		Monitoring: kind == KindMonitoring,
		Permission: permission,
	}
}

package permission

// Store composes the kernel's two permission layers: role-level Profiles
// (scope grants) and per-resource RWS sets.
type Store struct {
	Profiles *ProfileStore
	RWS      *RWSStore
}

// NewStore constructs an empty two-layer permission store.
func NewStore() *Store {
	return &Store{
		Profiles: NewProfileStore(),
		RWS:      NewRWSStore(),
	}
}

// DenyReason explains why a two-layer check failed, surfaced by the
// kernel as part of a PermissionDenied error.
type DenyReason struct {
	Reason   string
	Scope    string
	Required Requirement
}

// CheckRoute performs Layer 1: if a route declares
// both scope and required, the caller's role must be registered and its
// profile must satisfy required for scope. A route with no scope/required
// metadata always passes this layer (open route).
func (s *Store) CheckRoute(role string, scope string, required Requirement) (bool, *DenyReason) {
	if scope == "" || required == "" {
		return true, nil
	}
	if role == "" {
		return false, &DenyReason{Reason: "no role for caller", Scope: scope, Required: required}
	}
	ok, err := s.Profiles.CheckScope(role, scope, required)
	if err != nil {
		return false, &DenyReason{Reason: err.Error(), Scope: scope, Required: required}
	}
	if !ok {
		return false, &DenyReason{Reason: "profile does not satisfy scope requirement", Scope: scope, Required: required}
	}
	return true, nil
}

// CheckResource performs Layer 2: the RWS guard for a
// privileged action (read/write/grant) invoked by caller against a
// resource owner.
func (s *Store) CheckResource(owner, caller Key, required Requirement) (bool, *DenyReason) {
	var ok bool
	switch required {
	case RequireRead:
		ok = s.RWS.CanRead(owner, caller)
	case RequireWrite:
		ok = s.RWS.CanWrite(owner, caller)
	case RequireGrant:
		ok = s.RWS.CanGrant(owner, caller)
	}
	if !ok {
		return false, &DenyReason{Reason: "RWS does not grant required authority", Required: required}
	}
	return true, nil
}

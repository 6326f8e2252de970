package rbac

// CanAccess decides whether resolved may use a resource guarded by req.
//
// Rules, in order:
//   - an inactive principal (the zero value) is denied everything;
//   - a nil requirement allows;
//   - every required feature flag must be enabled, for super-admins too;
//   - super-admins pass the permission clause;
//   - a non-empty AnyOf needs one held key, otherwise a non-empty AllOf
//     needs every key, otherwise the clause passes.
//
// Empty lists never deny. CanAccess reads its arguments only.
func CanAccess(resolved ResolvedPrincipal, req *AccessRequirement) bool {
	if !resolved.Active {
		return false
	}
	if req == nil {
		return true
	}
	for _, flag := range req.RequiredFeatureFlags {
		if !resolved.FeatureFlags.Has(flag) {
			return false
		}
	}
	if resolved.IsSuperAdmin {
		return true
	}
	switch {
	case len(req.AnyOf) > 0:
		return hasAny(resolved.Permissions, req.AnyOf)
	case len(req.AllOf) > 0:
		return hasAll(resolved.Permissions, req.AllOf)
	default:
		return true
	}
}

func hasAny(granted Set, required []string) bool {
	for _, p := range required {
		if granted.Has(p) {
			return true
		}
	}
	return false
}

func hasAll(granted Set, required []string) bool {
	for _, p := range required {
		if !granted.Has(p) {
			return false
		}
	}
	return true
}

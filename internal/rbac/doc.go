// Package rbac decides whether an admin may use a protected surface of the
// console: a sidebar item, a UI route or an API endpoint.
//
// The flow is always the same. A Resolver turns a stored Principal into a
// ResolvedPrincipal (direct grants plus the grants of every active role,
// or a super-admin marker). CanAccess then evaluates an AccessRequirement
// against it, and FilterMenu and FilterRoutes apply CanAccess over static
// tables. Middleware runs the same two steps in front of HTTP handlers.
//
// Catalog values (Registry, menu sections, route tables) are built once and
// passed in explicitly; nothing in this package keeps mutable state.
//
// Failure handling is closed: inactive principals resolve to the zero
// ResolvedPrincipal, which CanAccess denies, and resolution errors deny at
// the guard.
//
// Requirement wire format:
//
//	{"anyOf": ["orders.view"], "allOf": ["orders.refund"], "requiredFeatureFlags": ["refunds-v2"]}
//
// An empty or missing anyOf/allOf list imposes no restriction.
package rbac

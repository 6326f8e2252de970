package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// PrincipalReader loads admins from storage.
type PrincipalReader interface {
	GetAdminByID(ctx context.Context, id int64) (Principal, error)
}

// RoleReader loads roles from storage. Missing ids are simply absent from
// the result.
type RoleReader interface {
	GetRolesByIDs(ctx context.Context, ids []int64) ([]Role, error)
}

// Resolver derives effective permission sets. It keeps no state between
// calls; caching belongs to callers.
type Resolver struct {
	principals PrincipalReader
	roles      RoleReader
	registry   *Registry
}

// NewResolver wires a Resolver. When registry is nil stored keys are not
// checked against the catalog.
func NewResolver(principals PrincipalReader, roles RoleReader, registry *Registry) *Resolver {
	return &Resolver{principals: principals, roles: roles, registry: registry}
}

// ResolveByID loads the admin and resolves it.
func (r *Resolver) ResolveByID(ctx context.Context, id int64) (ResolvedPrincipal, error) {
	if r.principals == nil {
		return ResolvedPrincipal{}, errors.New("rbac: principal reader not configured")
	}
	p, err := r.principals.GetAdminByID(ctx, id)
	if err != nil {
		return ResolvedPrincipal{}, err
	}
	return r.Resolve(ctx, p)
}

// Resolve computes the effective permission set of p.
//
// An inactive principal resolves to the zero ResolvedPrincipal without
// touching storage. Super-admins carry only their flags. Everyone else gets
// the union of direct grants and the grants of every active role they hold.
// A role id with no stored record, or a key unknown to the registry, is a
// configuration error.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (ResolvedPrincipal, error) {
	if !p.IsActive {
		return ResolvedPrincipal{}, nil
	}
	resolved := ResolvedPrincipal{
		Active:       true,
		IsSuperAdmin: p.IsSuperAdmin,
		Permissions:  NewSet(),
		FeatureFlags: NewSet(p.FeatureFlags...),
	}
	if p.IsSuperAdmin {
		return resolved, nil
	}

	if err := r.validate(p.DirectPermissions); err != nil {
		return ResolvedPrincipal{}, fmt.Errorf("admin %d direct grants: %w", p.ID, err)
	}
	resolved.Permissions.Add(p.DirectPermissions...)

	ids := uniqueIDs(p.RoleIDs)
	if len(ids) == 0 {
		return resolved, nil
	}
	if r.roles == nil {
		return ResolvedPrincipal{}, errors.New("rbac: role reader not configured")
	}
	roles, err := r.roles.GetRolesByIDs(ctx, ids)
	if err != nil {
		return ResolvedPrincipal{}, err
	}
	found := make(map[int64]struct{}, len(roles))
	for _, role := range roles {
		found[role.ID] = struct{}{}
		if !role.IsActive {
			continue
		}
		keys := role.PermissionKeys()
		if err := r.validate(keys); err != nil {
			return ResolvedPrincipal{}, fmt.Errorf("role %d: %w", role.ID, err)
		}
		resolved.Permissions.Add(keys...)
	}
	if missing := missingIDs(ids, found); len(missing) > 0 {
		return ResolvedPrincipal{}, fmt.Errorf("%w: ids %s held by admin %d", ErrRoleNotFound, missing, p.ID)
	}
	return resolved, nil
}

func (r *Resolver) validate(keys []string) error {
	if r.registry == nil {
		return nil
	}
	return r.registry.Validate(keys...)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func missingIDs(ids []int64, found map[int64]struct{}) string {
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, fmt.Sprint(id))
		}
	}
	return strings.Join(missing, ",")
}

package rbac

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// Permission is an immutable catalog entry.
type Permission struct {
	ID          int64  `json:"id" yaml:"id"`
	Key         string `json:"key" yaml:"key"`
	Module      string `json:"module" yaml:"module"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Role is a named bundle of permissions.
type Role struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	LocalizedName string          `json:"localizedName,omitempty"`
	Description   string          `json:"description,omitempty"`
	IsSystem      bool            `json:"isSystem"`
	IsActive      bool            `json:"isActive"`
	Permissions   []PermissionRef `json:"permissions"`
}

// PermissionKeys returns the normalized keys referenced by the role.
func (r Role) PermissionKeys() []string {
	keys := make([]string, 0, len(r.Permissions))
	for _, ref := range r.Permissions {
		if k := ref.Key(); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Principal describes an admin as read from storage.
type Principal struct {
	ID                int64
	IsSuperAdmin      bool
	IsActive          bool
	DirectPermissions []string
	RoleIDs           []int64
	FeatureFlags      []string
}

// AccessRequirement is the gate declared on a menu item, route or endpoint.
// A nil *AccessRequirement means no requirement.
type AccessRequirement struct {
	AnyOf                []string `json:"anyOf,omitempty" yaml:"anyOf"`
	AllOf                []string `json:"allOf,omitempty" yaml:"allOf"`
	RequiredFeatureFlags []string `json:"requiredFeatureFlags,omitempty" yaml:"requiredFeatureFlags"`
}

// AnyOf builds a requirement satisfied by at least one of perms.
func AnyOf(perms ...string) *AccessRequirement {
	return &AccessRequirement{AnyOf: normalizeList(perms)}
}

// AllOf builds a requirement satisfied only when every perm is held.
func AllOf(perms ...string) *AccessRequirement {
	return &AccessRequirement{AllOf: normalizeList(perms)}
}

// WithFlags returns a copy of the requirement that also gates on flags.
func (r *AccessRequirement) WithFlags(flags ...string) *AccessRequirement {
	out := &AccessRequirement{}
	if r != nil {
		out.AnyOf = append([]string(nil), r.AnyOf...)
		out.AllOf = append([]string(nil), r.AllOf...)
		out.RequiredFeatureFlags = append([]string(nil), r.RequiredFeatureFlags...)
	}
	out.RequiredFeatureFlags = append(out.RequiredFeatureFlags, normalizeList(flags)...)
	return out
}

// Keys lists every permission key the requirement mentions.
func (r *AccessRequirement) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.AnyOf)+len(r.AllOf))
	keys = append(keys, r.AnyOf...)
	keys = append(keys, r.AllOf...)
	return keys
}

// ResolvedPrincipal is the outcome of resolution. The zero value is an
// inactive principal and is denied everywhere.
type ResolvedPrincipal struct {
	Active       bool `json:"active"`
	IsSuperAdmin bool `json:"isSuperAdmin"`
	Permissions  Set  `json:"permissions"`
	FeatureFlags Set  `json:"featureFlags"`
}

// Set is an unordered collection of normalized strings.
type Set map[string]struct{}

// NewSet builds a set from normalized values, skipping blanks.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	s.Add(values...)
	return s
}

// Add inserts normalized values.
func (s Set) Add(values ...string) {
	for _, v := range values {
		if v = normalize(v); v != "" {
			s[v] = struct{}{}
		}
	}
}

// Has reports whether value is present.
func (s Set) Has(value string) bool {
	if s == nil {
		return false
	}
	_, ok := s[normalize(value)]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array into the set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewSet(values...)
	return nil
}

type refKind uint8

const (
	refKey refKind = iota + 1
	refResolved
)

// PermissionRef references a permission either by key or as a loaded
// catalog entry. Consumers only read it through Key.
type PermissionRef struct {
	kind       refKind
	key        string
	permission Permission
}

// KeyRef references a permission by key.
func KeyRef(key string) PermissionRef {
	return PermissionRef{kind: refKey, key: normalize(key)}
}

// ResolvedRef wraps a loaded permission.
func ResolvedRef(p Permission) PermissionRef {
	return PermissionRef{kind: refResolved, permission: p}
}

// KeyRefs converts keys into references.
func KeyRefs(keys ...string) []PermissionRef {
	refs := make([]PermissionRef, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, KeyRef(k))
	}
	return refs
}

// Key returns the normalized permission key.
func (r PermissionRef) Key() string {
	switch r.kind {
	case refResolved:
		return normalize(r.permission.Key)
	case refKey:
		return r.key
	default:
		return ""
	}
}

// Permission returns the loaded entry when the reference carries one.
func (r PermissionRef) Permission() (Permission, bool) {
	return r.permission, r.kind == refResolved
}

// MarshalJSON always emits the plain key.
func (r PermissionRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Key())
}

// UnmarshalJSON accepts either "orders.view" or {"key":"orders.view",...}.
func (r *PermissionRef) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		*r = KeyRef(key)
		return nil
	}
	var p Permission
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Key) == "" {
		return errors.New("rbac: permission reference without key")
	}
	*r = ResolvedRef(p)
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

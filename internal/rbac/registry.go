package rbac

import (
	"fmt"
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*(\.[a-z][a-z0-9_-]*)+$`)

// NormalizeKey lowercases and trims a permission key.
func NormalizeKey(key string) string {
	return normalize(key)
}

// ParseKey splits a normalized key into its module and action parts.
func ParseKey(key string) (module, action string, err error) {
	key = normalize(key)
	if !keyPattern.MatchString(key) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	idx := strings.IndexByte(key, '.')
	return key[:idx], key[idx+1:], nil
}

// Module groups the permissions that share a key prefix.
type Module struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

// Registry is the immutable permission catalog. It is safe for concurrent
// use because nothing mutates it after NewRegistry returns.
type Registry struct {
	byKey   map[string]Permission
	order   []string
	modules []string
	grouped map[string][]string
}

// NewRegistry validates perms and builds a registry. Keys are normalized,
// must be unique, and an explicit Module must match the key prefix.
func NewRegistry(perms []Permission) (*Registry, error) {
	reg := &Registry{
		byKey:   make(map[string]Permission, len(perms)),
		order:   make([]string, 0, len(perms)),
		grouped: make(map[string][]string),
	}
	for i, p := range perms {
		module, _, err := ParseKey(p.Key)
		if err != nil {
			return nil, err
		}
		key := normalize(p.Key)
		if _, dup := reg.byKey[key]; dup {
			return nil, fmt.Errorf("rbac: duplicate permission %q", key)
		}
		if declared := normalize(p.Module); declared != "" && declared != module {
			return nil, fmt.Errorf("rbac: permission %q declares module %q", key, declared)
		}
		p.Key = key
		p.Module = module
		if p.ID == 0 {
			p.ID = int64(i + 1)
		}
		reg.byKey[key] = p
		reg.order = append(reg.order, key)
		if _, seen := reg.grouped[module]; !seen {
			reg.modules = append(reg.modules, module)
		}
		reg.grouped[module] = append(reg.grouped[module], key)
	}
	return reg, nil
}

// MustRegistry is NewRegistry that panics, for static fixtures.
func MustRegistry(perms []Permission) *Registry {
	reg, err := NewRegistry(perms)
	if err != nil {
		panic(err)
	}
	return reg
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byKey[normalize(key)]
	return ok
}

// Lookup returns the registered permission for key.
func (r *Registry) Lookup(key string) (Permission, bool) {
	if r == nil {
		return Permission{}, false
	}
	p, ok := r.byKey[normalize(key)]
	return p, ok
}

// Len returns the number of registered permissions.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Permissions returns a copy of the catalog in declaration order.
func (r *Registry) Permissions() []Permission {
	if r == nil {
		return nil
	}
	out := make([]Permission, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKey[k])
	}
	return out
}

// Modules returns the catalog grouped by module in declaration order.
func (r *Registry) Modules() []Module {
	if r == nil {
		return nil
	}
	out := make([]Module, 0, len(r.modules))
	for _, name := range r.modules {
		keys := r.grouped[name]
		m := Module{Name: name, Permissions: make([]Permission, 0, len(keys))}
		for _, k := range keys {
			m.Permissions = append(m.Permissions, r.byKey[k])
		}
		out = append(out, m)
	}
	return out
}

// Validate fails with ErrUnknownPermission naming every key that is not
// registered.
func (r *Registry) Validate(keys ...string) error {
	var unknown []string
	for _, k := range keys {
		if !r.Has(k) {
			unknown = append(unknown, fmt.Sprintf("%q", normalize(k)))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, strings.Join(unknown, ", "))
	}
	return nil
}

// ValidateRequirement checks every key mentioned by req.
func (r *Registry) ValidateRequirement(req *AccessRequirement) error {
	return r.Validate(req.Keys()...)
}

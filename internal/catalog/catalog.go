// Package catalog loads the access configuration of the admin console: the
// permission registry, the sidebar menu, the UI route table and the system
// role presets.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tras-phone/admin-access/internal/rbac"
)

//go:embed default.yaml
var defaultYAML []byte

// RolePreset describes a system role seeded from the catalog.
type RolePreset struct {
	Name           string   `yaml:"name"`
	LocalizedName  string   `yaml:"localizedName"`
	Description    string   `yaml:"description"`
	AllPermissions bool     `yaml:"allPermissions"`
	Permissions    []string `yaml:"permissions"`
}

// Catalog is an immutable, validated access configuration. Pass it to the
// components that need it; do not mutate its fields after Load.
type Catalog struct {
	Registry     *rbac.Registry
	Menu         []rbac.Section
	Routes       rbac.RouteTable
	SystemRoles  []RolePreset
	FeatureFlags []string
}

type document struct {
	FeatureFlags []string          `yaml:"featureFlags"`
	Permissions  []rbac.Permission `yaml:"permissions"`
	Menu         []rbac.Section    `yaml:"menu"`
	Routes       rbac.RouteTable   `yaml:"routes"`
	SystemRoles  []RolePreset      `yaml:"systemRoles"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultYAML))
}

// LoadFile reads a catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog: empty document")
		}
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	registry, err := rbac.NewRegistry(doc.Permissions)
	if err != nil {
		return nil, fmt.Errorf("catalog: permissions: %w", err)
	}
	flags := rbac.NewSet(doc.FeatureFlags...)

	checkReq := func(where string, req *rbac.AccessRequirement) (*rbac.AccessRequirement, error) {
		if req == nil {
			return nil, nil
		}
		if err := registry.ValidateRequirement(req); err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", where, err)
		}
		for _, f := range req.RequiredFeatureFlags {
			if !flags.Has(f) {
				return nil, fmt.Errorf("catalog: %s: undeclared feature flag %q", where, f)
			}
		}
		normalized := rbac.AnyOf(req.AnyOf...)
		normalized.AllOf = rbac.AllOf(req.AllOf...).AllOf
		return normalized.WithFlags(req.RequiredFeatureFlags...), nil
	}

	menu := make([]rbac.Section, 0, len(doc.Menu))
	itemKeys := make(map[string]struct{})
	for _, section := range doc.Menu {
		if strings.TrimSpace(section.Key) == "" {
			return nil, errors.New("catalog: menu section without key")
		}
		items := make([]rbac.MenuItem, 0, len(section.Items))
		for _, item := range section.Items {
			if item.Key == "" {
				return nil, fmt.Errorf("catalog: menu %s: item without key", section.Key)
			}
			if _, dup := itemKeys[item.Key]; dup {
				return nil, fmt.Errorf("catalog: menu item %q declared twice", item.Key)
			}
			itemKeys[item.Key] = struct{}{}
			req, err := checkReq("menu "+item.Key, item.Requirement)
			if err != nil {
				return nil, err
			}
			item.Requirement = req
			items = append(items, item)
		}
		section.Items = items
		menu = append(menu, section)
	}

	routes := make(rbac.RouteTable, len(doc.Routes))
	for path, req := range doc.Routes {
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("catalog: route %q must start with /", path)
		}
		checked, err := checkReq("route "+path, req)
		if err != nil {
			return nil, err
		}
		routes[path] = checked
	}

	presets := make([]RolePreset, 0, len(doc.SystemRoles))
	names := make(map[string]struct{})
	for _, preset := range doc.SystemRoles {
		preset.Name = strings.TrimSpace(preset.Name)
		if preset.Name == "" {
			return nil, errors.New("catalog: system role without name")
		}
		if _, dup := names[preset.Name]; dup {
			return nil, fmt.Errorf("catalog: system role %q declared twice", preset.Name)
		}
		names[preset.Name] = struct{}{}
		if preset.AllPermissions {
			preset.Permissions = nil
			for _, p := range registry.Permissions() {
				preset.Permissions = append(preset.Permissions, p.Key)
			}
		} else if err := registry.Validate(preset.Permissions...); err != nil {
			return nil, fmt.Errorf("catalog: system role %s: %w", preset.Name, err)
		}
		presets = append(presets, preset)
	}

	return &Catalog{
		Registry:     registry,
		Menu:         menu,
		Routes:       routes,
		SystemRoles:  presets,
		FeatureFlags: flags.Sorted(),
	}, nil
}

// HasFeatureFlag reports whether flag is declared by the catalog.
func (c *Catalog) HasFeatureFlag(flag string) bool {
	return rbac.NewSet(c.FeatureFlags...).Has(flag)
}

// Role converts the preset into a system role ready to be stored.
func (p RolePreset) Role() rbac.Role {
	return rbac.Role{
		Name:          p.Name,
		LocalizedName: p.LocalizedName,
		Description:   p.Description,
		IsSystem:      true,
		IsActive:      true,
		Permissions:   rbac.KeyRefs(p.Permissions...),
	}
}

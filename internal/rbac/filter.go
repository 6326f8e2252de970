package rbac

import "sort"

// MenuItem is one entry of the admin sidebar.
type MenuItem struct {
	Key         string             `json:"key" yaml:"key"`
	Label       string             `json:"label" yaml:"label"`
	Path        string             `json:"path" yaml:"path"`
	Icon        string             `json:"icon,omitempty" yaml:"icon"`
	Requirement *AccessRequirement `json:"requirement,omitempty" yaml:"requirement"`
}

// Section is an ordered group of menu items.
type Section struct {
	Key   string     `json:"key" yaml:"key"`
	Title string     `json:"title" yaml:"title"`
	Items []MenuItem `json:"items" yaml:"items"`
}

// RouteTable maps a path to its requirement. A nil value means the route
// is open to any active admin.
type RouteTable map[string]*AccessRequirement

// FilterMenu returns the sections and items resolved may see. Sections left
// without items are dropped and the original order is kept. The input is not
// modified.
func FilterMenu(sections []Section, resolved ResolvedPrincipal) []Section {
	out := make([]Section, 0, len(sections))
	for _, section := range sections {
		var items []MenuItem
		for _, item := range section.Items {
			if CanAccess(resolved, item.Requirement) {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			continue
		}
		kept := section
		kept.Items = items
		out = append(out, kept)
	}
	return out
}

// FilterRoutes returns the paths resolved may open, sorted, exactly as they
// are spelled in the table.
func FilterRoutes(routes RouteTable, resolved ResolvedPrincipal) []string {
	allowed := make([]string, 0, len(routes))
	for path, req := range routes {
		if CanAccess(resolved, req) {
			allowed = append(allowed, path)
		}
	}
	sort.Strings(allowed)
	return allowed
}

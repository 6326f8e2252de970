package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tras-phone/admin-access/internal/rbac"
)

// CheckOptions defines the flags of the check command.
type CheckOptions struct {
	AdminID     int64
	Route       string
	Permissions []string
	RequireAll  bool
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// CheckSummary is the JSON output of the check command.
type CheckSummary struct {
	AdminID      int64    `json:"admin_id"`
	Active       bool     `json:"active"`
	IsSuperAdmin bool     `json:"is_super_admin"`
	Allowed      bool     `json:"allowed"`
	Requirement  string   `json:"requirement"`
	Missing      []string `json:"missing"`
}

// AccessCLI answers access questions against live data.
type AccessCLI struct {
	resolver rbac.PrincipalResolver
	routes   rbac.RouteTable
}

// NewAccessCLI builds the helper.
func NewAccessCLI(resolver rbac.PrincipalResolver, routes rbac.RouteTable) (*AccessCLI, error) {
	if resolver == nil {
		return nil, fmt.Errorf("access cli: resolver required")
	}
	return &AccessCLI{resolver: resolver, routes: routes}, nil
}

// CheckCommand resolves an admin and evaluates either a catalog route or an
// ad hoc permission list. It exits 0 when allowed and 10 when denied.
func (c *AccessCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.AdminID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "check: --admin is required and must be positive")
		return 1
	}
	req, label, err := c.requirement(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: %v\n", err)
		return 1
	}
	resolved, err := c.resolver.ResolveByID(ctx, opts.AdminID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "check: resolve admin %d: %v\n", opts.AdminID, err)
		return 1
	}
	summary := CheckSummary{
		AdminID:      opts.AdminID,
		Active:       resolved.Active,
		IsSuperAdmin: resolved.IsSuperAdmin,
		Allowed:      rbac.CanAccess(resolved, req),
		Requirement:  label,
		Missing:      missing(resolved, req),
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "check: encode json: %v\n", err)
			return 1
		}
	} else {
		renderCheckHuman(opts.Stdout, summary)
	}
	if !summary.Allowed {
		return 10
	}
	return 0
}

func (c *AccessCLI) requirement(opts CheckOptions) (*rbac.AccessRequirement, string, error) {
	route := strings.TrimSpace(opts.Route)
	switch {
	case route != "" && len(opts.Permissions) > 0:
		return nil, "", fmt.Errorf("use either --route or --perm")
	case route != "":
		req, ok := c.routes[route]
		if !ok {
			return nil, "", fmt.Errorf("route %q is not in the catalog", route)
		}
		return req, "route " + route, nil
	case len(opts.Permissions) > 0:
		if opts.RequireAll {
			return rbac.AllOf(opts.Permissions...), "all of " + strings.Join(opts.Permissions, ","), nil
		}
		return rbac.AnyOf(opts.Permissions...), "any of " + strings.Join(opts.Permissions, ","), nil
	default:
		return nil, "", fmt.Errorf("--route or --perm is required")
	}
}

// missing lists what the principal lacks for req, permissions first and then
// feature flags prefixed with "flag:".
func missing(resolved rbac.ResolvedPrincipal, req *rbac.AccessRequirement) []string {
	out := []string{}
	if req == nil {
		return out
	}
	for _, f := range req.RequiredFeatureFlags {
		if !resolved.FeatureFlags.Has(f) {
			out = append(out, "flag:"+f)
		}
	}
	if resolved.IsSuperAdmin {
		return out
	}
	if len(req.AnyOf) > 0 {
		for _, k := range req.AnyOf {
			if resolved.Permissions.Has(k) {
				return out
			}
		}
		return append(out, req.AnyOf...)
	}
	for _, k := range req.AllOf {
		if !resolved.Permissions.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func renderCheckHuman(w io.Writer, s CheckSummary) {
	verdict := "DENIED"
	if s.Allowed {
		verdict = "ALLOWED"
	}
	_, _ = fmt.Fprintf(w, "admin %d: %s (%s)\n", s.AdminID, verdict, s.Requirement)
	if !s.Active {
		_, _ = fmt.Fprintln(w, "  admin is inactive")
	}
	if s.IsSuperAdmin {
		_, _ = fmt.Fprintln(w, "  super-admin")
	}
	for _, m := range s.Missing {
		_, _ = fmt.Fprintf(w, "  missing %s\n", m)
	}
}

package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
)

// PermissionsHandler serves the permission catalog and the caller's own
// access view.
type PermissionsHandler struct {
	logger   *slog.Logger
	registry *Registry
	menu     []Section
	routes   RouteTable
	rbac     Middleware
	viewPerm string
}

// NewPermissionsHandler builds PermissionsHandler instance. viewPerm guards
// the catalog listing.
func NewPermissionsHandler(logger *slog.Logger, registry *Registry, menu []Section, routes RouteTable, rbac Middleware, viewPerm string) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, registry: registry, menu: menu, routes: routes, rbac: rbac, viewPerm: viewPerm}
}

// MountRoutes registers /permissions routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(h.viewPerm))
		r.Get("/", h.listPermissions)
	})
}

// MountMe registers /me routes.
func (h *PermissionsHandler) MountMe(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(nil))
		r.Get("/access", h.myAccess)
	})
}

// AccessView is the payload of GET /me/access.
type AccessView struct {
	Permissions  Set       `json:"permissions"`
	FeatureFlags Set       `json:"featureFlags"`
	IsSuperAdmin bool      `json:"isSuperAdmin"`
	Menu         []Section `json:"menu"`
	Routes       []string  `json:"routes"`
}

// BuildAccessView filters the menu and route tables for resolved.
func BuildAccessView(resolved ResolvedPrincipal, menu []Section, routes RouteTable) AccessView {
	perms := resolved.Permissions
	if perms == nil {
		perms = NewSet()
	}
	flags := resolved.FeatureFlags
	if flags == nil {
		flags = NewSet()
	}
	return AccessView{
		Permissions:  perms,
		FeatureFlags: flags,
		IsSuperAdmin: resolved.IsSuperAdmin,
		Menu:         FilterMenu(menu, resolved),
		Routes:       FilterRoutes(routes, resolved),
	}
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"modules": h.registry.Modules()})
}

func (h *PermissionsHandler) myAccess(w http.ResponseWriter, r *http.Request) {
	resolved, ok := ResolvedFromContext(r.Context())
	if !ok {
		if h.logger != nil {
			h.logger.Error("me access without resolved principal", slog.String("path", r.URL.Path))
		}
		httpx.Forbidden(w)
		return
	}
	httpx.JSON(w, http.StatusOK, BuildAccessView(resolved, h.menu, h.routes))
}

package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func menuFixture() []Section {
	return []Section{
		{Key: "sales", Title: "Sales", Items: []MenuItem{
			{Key: "orders", Path: "/orders", Requirement: AnyOf("orders.view")},
			{Key: "returns", Path: "/returns", Requirement: AnyOf("returns.view")},
		}},
		{Key: "catalog", Title: "Catalog", Items: []MenuItem{
			{Key: "products", Path: "/products", Requirement: AnyOf("products.view")},
		}},
		{Key: "account", Title: "Account", Items: []MenuItem{
			{Key: "profile", Path: "/profile"},
		}},
	}
}

func TestFilterMenuKeepsOrderAndDropsEmptySections(t *testing.T) {
	menu := menuFixture()
	out := FilterMenu(menu, active("returns.view"))

	require.Len(t, out, 2)
	require.Equal(t, "sales", out[0].Key)
	require.Len(t, out[0].Items, 1)
	require.Equal(t, "returns", out[0].Items[0].Key)
	require.Equal(t, "account", out[1].Key)

	require.Len(t, menu[0].Items, 2, "input must be untouched")
}

func TestFilterMenuInactiveSeesNothing(t *testing.T) {
	out := FilterMenu(menuFixture(), ResolvedPrincipal{})
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestFilterMenuSuperAdminSeesAll(t *testing.T) {
	super := ResolvedPrincipal{Active: true, IsSuperAdmin: true, Permissions: NewSet(), FeatureFlags: NewSet()}
	out := FilterMenu(menuFixture(), super)
	require.Len(t, out, 3)
}

func TestFilterRoutes(t *testing.T) {
	routes := RouteTable{
		"/orders":            AnyOf("orders.view"),
		"/orders/:id/refund": AllOf("orders.view", "orders.refund"),
		"/profile":           nil,
	}
	allowed := FilterRoutes(routes, active("orders.view"))
	require.Equal(t, []string{"/orders", "/profile"}, allowed)

	require.Empty(t, FilterRoutes(routes, ResolvedPrincipal{}))
}

func TestFilterRoutesKeepsPathSpelling(t *testing.T) {
	routes := RouteTable{
		"/orders/:orderId": nil,
		"/Reports":         nil,
		"/reports":         AnyOf("reports.view"),
	}
	allowed := FilterRoutes(routes, active("reports.view"))
	require.Equal(t, []string{"/Reports", "/orders/:orderId", "/reports"}, allowed)
}

func TestBuildAccessView(t *testing.T) {
	routes := RouteTable{"/orders": AnyOf("orders.view"), "/profile": nil}
	view := BuildAccessView(ResolvedPrincipal{}, menuFixture(), routes)
	require.NotNil(t, view.Permissions)
	require.NotNil(t, view.FeatureFlags)
	require.Empty(t, view.Menu)
	require.Empty(t, view.Routes)

	view = BuildAccessView(active("orders.view"), menuFixture(), routes)
	require.Equal(t, []string{"/orders", "/profile"}, view.Routes)
	require.Len(t, view.Menu, 2)
}

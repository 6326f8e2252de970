package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry([]Permission{
		{Key: "orders.view"},
		{Key: "orders.update"},
		{Key: "Products.View", Description: "Browse products"},
		{Key: "orders.refund"},
	})
	require.NoError(t, err)
	return reg
}

func TestParseKey(t *testing.T) {
	module, action, err := ParseKey(" Orders.Export ")
	require.NoError(t, err)
	require.Equal(t, "orders", module)
	require.Equal(t, "export", action)

	module, action, err = ParseKey("customers.wallet.adjust")
	require.NoError(t, err)
	require.Equal(t, "customers", module)
	require.Equal(t, "wallet.adjust", action)

	for _, bad := range []string{"", "orders", "orders.", ".view", "orders view", "1orders.view", "orders..view"} {
		_, _, err := ParseKey(bad)
		require.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestNewRegistryNormalizesAndGroups(t *testing.T) {
	reg := testRegistry(t)

	require.Equal(t, 4, reg.Len())
	require.True(t, reg.Has("PRODUCTS.view"))
	p, ok := reg.Lookup("products.view")
	require.True(t, ok)
	require.Equal(t, "products.view", p.Key)
	require.Equal(t, "products", p.Module)
	require.Equal(t, int64(3), p.ID)

	modules := reg.Modules()
	require.Len(t, modules, 2)
	require.Equal(t, "orders", modules[0].Name)
	require.Len(t, modules[0].Permissions, 3)
	require.Equal(t, "products", modules[1].Name)
}

func TestNewRegistryRejectsBadCatalogs(t *testing.T) {
	_, err := NewRegistry([]Permission{{Key: "orders.view"}, {Key: " ORDERS.VIEW"}})
	require.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry([]Permission{{Key: "orders.view", Module: "sales"}})
	require.ErrorContains(t, err, "declares module")

	_, err = NewRegistry([]Permission{{Key: "not-a-key"}})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestRegistryPermissionsReturnsCopy(t *testing.T) {
	reg := testRegistry(t)
	perms := reg.Permissions()
	perms[0].Key = "tampered.key"
	require.True(t, reg.Has("orders.view"))
	require.False(t, reg.Has("tampered.key"))
}

func TestRegistryValidate(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.Validate())
	require.NoError(t, reg.Validate("orders.view", " Orders.Update"))

	err := reg.Validate("orders.view", "orders.delete", "ghost.key")
	require.ErrorIs(t, err, ErrUnknownPermission)
	require.True(t, errors.Is(err, httpx.ErrValidation))
	require.Contains(t, err.Error(), `"orders.delete"`)
	require.Contains(t, err.Error(), `"ghost.key"`)

	require.ErrorIs(t, reg.Validate(""), ErrUnknownPermission)
}

func TestRegistryValidateRequirement(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.ValidateRequirement(nil))
	require.NoError(t, reg.ValidateRequirement(AnyOf("orders.view")))
	require.ErrorIs(t, reg.ValidateRequirement(AllOf("orders.view", "orders.ship")), ErrUnknownPermission)
}

func TestMustRegistryPanics(t *testing.T) {
	require.Panics(t, func() { MustRegistry([]Permission{{Key: "bad"}}) })
}

package shared

// Catalog and order permissions.
const (
	PermDashboardView = "dashboard.view"

	PermProductsView    = "products.view"
	PermProductsCreate  = "products.create"
	PermProductsUpdate  = "products.update"
	PermProductsDelete  = "products.delete"
	PermProductsPublish = "products.publish"

	PermCategoriesView   = "categories.view"
	PermCategoriesManage = "categories.manage"

	PermBrandsView   = "brands.view"
	PermBrandsManage = "brands.manage"

	PermOrdersView   = "orders.view"
	PermOrdersUpdate = "orders.update"
	PermOrdersCancel = "orders.cancel"
	PermOrdersRefund = "orders.refund"
	PermOrdersExport = "orders.export"

	PermReturnsView    = "returns.view"
	PermReturnsApprove = "returns.approve"
)

// CommerceScopes lists catalog and order permissions.
func CommerceScopes() []string {
	return []string{
		PermDashboardView,
		PermProductsView,
		PermProductsCreate,
		PermProductsUpdate,
		PermProductsDelete,
		PermProductsPublish,
		PermCategoriesView,
		PermCategoriesManage,
		PermBrandsView,
		PermBrandsManage,
		PermOrdersView,
		PermOrdersUpdate,
		PermOrdersCancel,
		PermOrdersRefund,
		PermOrdersExport,
		PermReturnsView,
		PermReturnsApprove,
	}
}

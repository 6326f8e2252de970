package shared

// Customer, wallet and loyalty permissions.
const (
	PermCustomersView   = "customers.view"
	PermCustomersUpdate = "customers.update"
	PermCustomersBlock  = "customers.block"

	PermWalletView   = "wallet.view"
	PermWalletAdjust = "wallet.adjust"

	PermLoyaltyView   = "loyalty.view"
	PermLoyaltyManage = "loyalty.manage"

	PermCouponsView   = "coupons.view"
	PermCouponsManage = "coupons.manage"
)

// CustomerScopes lists customer facing back-office permissions.
func CustomerScopes() []string {
	return []string{
		PermCustomersView,
		PermCustomersUpdate,
		PermCustomersBlock,
		PermWalletView,
		PermWalletAdjust,
		PermLoyaltyView,
		PermLoyaltyManage,
		PermCouponsView,
		PermCouponsManage,
	}
}

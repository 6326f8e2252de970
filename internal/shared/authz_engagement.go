package shared

// Support, notification and reporting permissions.
const (
	PermSupportView   = "support.view"
	PermSupportReply  = "support.reply"
	PermSupportAssign = "support.assign"

	PermNotificationsView = "notifications.view"
	PermNotificationsSend = "notifications.send"

	PermReportsView   = "reports.view"
	PermReportsExport = "reports.export"
)

// Feature flags gating rollout of console sections.
const (
	FlagSupportChatV2 = "support-chat-v2"
	FlagLoyaltyTiers  = "loyalty-tiers"
	FlagBulkExport    = "bulk-export"
)

// EngagementScopes lists support, notification and reporting permissions.
func EngagementScopes() []string {
	return []string{
		PermSupportView,
		PermSupportReply,
		PermSupportAssign,
		PermNotificationsView,
		PermNotificationsSend,
		PermReportsView,
		PermReportsExport,
	}
}

// AllScopes concatenates every permission group.
func AllScopes() []string {
	var all []string
	all = append(all, CoreScopes()...)
	all = append(all, CommerceScopes()...)
	all = append(all, CustomerScopes()...)
	all = append(all, EngagementScopes()...)
	return all
}

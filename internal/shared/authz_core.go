package shared

// Console administration permissions.
const (
	PermAdminsView         = "admins.view"
	PermAdminsCreate       = "admins.create"
	PermAdminsUpdate       = "admins.update"
	PermAdminsManageAccess = "admins.manage_access"

	PermRolesView   = "roles.view"
	PermRolesCreate = "roles.create"
	PermRolesUpdate = "roles.update"
	PermRolesDelete = "roles.delete"

	PermPermissionsView   = "permissions.view"
	PermPermissionsAssign = "permissions.assign"

	PermSettingsView   = "settings.view"
	PermSettingsUpdate = "settings.update"

	PermAuditView   = "audit.view"
	PermAuditExport = "audit.export"
)

// CoreScopes lists all permissions related to console administration.
func CoreScopes() []string {
	return []string{
		PermAdminsView,
		PermAdminsCreate,
		PermAdminsUpdate,
		PermAdminsManageAccess,
		PermRolesView,
		PermRolesCreate,
		PermRolesUpdate,
		PermRolesDelete,
		PermPermissionsView,
		PermPermissionsAssign,
		PermSettingsView,
		PermSettingsUpdate,
		PermAuditView,
		PermAuditExport,
	}
}

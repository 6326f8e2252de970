package roles

import (
	"fmt"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
)

// Audit actions emitted by the service.
const (
	ActionRoleCreated        = "role.created"
	ActionRoleUpdated        = "role.updated"
	ActionRoleDeleted        = "role.deleted"
	ActionRolePermissionsSet = "role.permissions_set"

	auditEntity = "role"
)

// ErrRoleNameRequired is returned when a name is blank after trimming.
var ErrRoleNameRequired = fmt.Errorf("roles: name required: %w", httpx.ErrValidation)

// CreateRoleInput carries the fields of a new role. IsActive defaults to
// true.
type CreateRoleInput struct {
	Name          string
	LocalizedName string
	Description   string
	Permissions   []string
	IsActive      *bool
}

// RolePatch lists the fields to change; nil fields are left untouched.
type RolePatch struct {
	Name          *string
	LocalizedName *string
	Description   *string
	IsActive      *bool
	Permissions   *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (p RolePatch) IsEmpty() bool {
	return p.Name == nil && p.LocalizedName == nil && p.Description == nil && p.IsActive == nil && p.Permissions == nil
}

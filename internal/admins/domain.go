package admins

import (
	"fmt"
	"time"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
	"github.com/tras-phone/admin-access/internal/rbac"
)

// ActionAccessUpdated is the audit action for access changes.
const ActionAccessUpdated = "admin.access_updated"

// ErrUnknownFeatureFlag is returned for flags the catalog does not declare.
var ErrUnknownFeatureFlag = fmt.Errorf("admins: unknown feature flag: %w", httpx.ErrValidation)

// Admin is a console account together with its access data.
type Admin struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	IsActive          bool      `json:"isActive"`
	IsSuperAdmin      bool      `json:"isSuperAdmin"`
	RoleIDs           []int64   `json:"roleIds"`
	DirectPermissions []string  `json:"directPermissions"`
	FeatureFlags      []string  `json:"featureFlags"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Principal projects the admin onto the resolver input.
func (a Admin) Principal() rbac.Principal {
	return rbac.Principal{
		ID:                a.ID,
		IsSuperAdmin:      a.IsSuperAdmin,
		IsActive:          a.IsActive,
		DirectPermissions: append([]string(nil), a.DirectPermissions...),
		RoleIDs:           append([]int64(nil), a.RoleIDs...),
		FeatureFlags:      append([]string(nil), a.FeatureFlags...),
	}
}

// AccessPatch lists access fields to replace; nil fields are kept.
type AccessPatch struct {
	IsActive          *bool
	RoleIDs           *[]int64
	DirectPermissions *[]string
	FeatureFlags      *[]string
}

// IsEmpty reports whether the patch changes nothing.
func (p AccessPatch) IsEmpty() bool {
	return p.IsActive == nil && p.RoleIDs == nil && p.DirectPermissions == nil && p.FeatureFlags == nil
}

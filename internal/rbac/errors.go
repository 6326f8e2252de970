package rbac

import (
	"errors"
	"fmt"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
)

var (
	// ErrUnknownPermission marks a key absent from the registry.
	ErrUnknownPermission = fmt.Errorf("rbac: unknown permission: %w", httpx.ErrValidation)
	// ErrInvalidKey marks a key that is not in module.action form.
	ErrInvalidKey = fmt.Errorf("rbac: invalid permission key: %w", httpx.ErrValidation)
	// ErrSystemRoleImmutable is returned when renaming or deleting a system role.
	ErrSystemRoleImmutable = fmt.Errorf("rbac: system role is immutable: %w", httpx.ErrConflict)
	// ErrRoleNotFound is returned for operations on a missing role.
	ErrRoleNotFound = fmt.Errorf("rbac: role not found: %w", httpx.ErrNotFound)
	// ErrPrincipalNotFound is returned when the admin record does not exist.
	ErrPrincipalNotFound = fmt.Errorf("rbac: principal not found: %w", httpx.ErrNotFound)
)

// IsConfigError reports whether err comes from malformed access
// configuration rather than a storage failure. Call sites deny on both.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownPermission) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrRoleNotFound) ||
		errors.Is(err, ErrPrincipalNotFound)
}

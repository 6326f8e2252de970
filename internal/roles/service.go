package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/tras-phone/admin-access/internal/rbac"
	"github.com/tras-phone/admin-access/internal/shared"
)

// Store persists roles. GetRole and DeleteRoleRecord return
// rbac.ErrRoleNotFound for unknown ids. SaveRole inserts when ID is zero and
// otherwise replaces the stored row and permission set.
type Store interface {
	rbac.RoleReader
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	SaveRole(ctx context.Context, role rbac.Role) (rbac.Role, error)
	DeleteRoleRecord(ctx context.Context, id int64) error
}

// Invalidator drops cached resolutions after a change that affects every
// holder of a role.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Auditor receives an entry for every successful mutation.
type Auditor interface {
	Audit(ctx context.Context, entry shared.AuditLog) error
}

// Service implements role administration on top of a Store.
type Service struct {
	store       Store
	registry    *rbac.Registry
	invalidator Invalidator
	auditor     Auditor
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service instance. invalidator, auditor and logger may be
// nil.
func NewService(store Store, registry *rbac.Registry, invalidator Invalidator, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		registry:    registry,
		invalidator: invalidator,
		auditor:     auditor,
		logger:      logger,
		now:         time.Now,
	}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return s.store.GetRole(ctx, id)
}

// CreateRole validates and stores a new, never system, role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, input CreateRoleInput) (rbac.Role, error) {
	name := normalizeName(input.Name)
	if name == "" {
		return rbac.Role{}, ErrRoleNameRequired
	}
	perms := dedupe(input.Permissions)
	if err := s.registry.Validate(perms...); err != nil {
		return rbac.Role{}, err
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	role, err := s.store.SaveRole(ctx, rbac.Role{
		Name:          name,
		LocalizedName: normalizeName(input.LocalizedName),
		Description:   strings.TrimSpace(input.Description),
		IsSystem:      false,
		IsActive:      active,
		Permissions:   rbac.KeyRefs(perms...),
	})
	if err != nil {
		return rbac.Role{}, err
	}
	s.audit(ctx, actorID, ActionRoleCreated, role.ID, map[string]any{
		"name":        role.Name,
		"permissions": perms,
		"is_active":   role.IsActive,
	})
	return role, nil
}

// UpdateRole applies patch. System roles keep their names; activation,
// description and permission edits are allowed on them.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, patch RolePatch) (rbac.Role, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	if patch.IsEmpty() {
		return role, nil
	}
	changes := map[string]any{}
	affectsHolders := false

	if patch.Name != nil {
		name := normalizeName(*patch.Name)
		if name == "" {
			return rbac.Role{}, ErrRoleNameRequired
		}
		if name != role.Name {
			if role.IsSystem {
				return rbac.Role{}, rbac.ErrSystemRoleImmutable
			}
			changes["name"] = name
			role.Name = name
		}
	}
	if patch.LocalizedName != nil {
		localized := normalizeName(*patch.LocalizedName)
		if localized != role.LocalizedName {
			if role.IsSystem {
				return rbac.Role{}, rbac.ErrSystemRoleImmutable
			}
			changes["localized_name"] = localized
			role.LocalizedName = localized
		}
	}
	if patch.Description != nil {
		role.Description = strings.TrimSpace(*patch.Description)
		changes["description"] = role.Description
	}
	if patch.IsActive != nil && *patch.IsActive != role.IsActive {
		role.IsActive = *patch.IsActive
		changes["is_active"] = role.IsActive
		affectsHolders = true
	}
	if patch.Permissions != nil {
		perms := dedupe(*patch.Permissions)
		if err := s.registry.Validate(perms...); err != nil {
			return rbac.Role{}, err
		}
		role.Permissions = rbac.KeyRefs(perms...)
		changes["permissions"] = perms
		affectsHolders = true
	}

	saved, err := s.store.SaveRole(ctx, role)
	if err != nil {
		return rbac.Role{}, err
	}
	var invalidateErr error
	if affectsHolders {
		invalidateErr = s.invalidate(ctx, saved.ID)
	}
	s.audit(ctx, actorID, ActionRoleUpdated, saved.ID, changes)
	if invalidateErr != nil {
		return rbac.Role{}, invalidateErr
	}
	return saved, nil
}

// DeleteRole removes a non-system role. Admins still referencing the id are
// not touched; they fail resolution until reassigned.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return rbac.ErrSystemRoleImmutable
	}
	if err := s.store.DeleteRoleRecord(ctx, id); err != nil {
		return err
	}
	invalidateErr := s.invalidate(ctx, id)
	s.audit(ctx, actorID, ActionRoleDeleted, id, map[string]any{"name": role.Name})
	return invalidateErr
}

// SetRolePermissions replaces the permission set of a role wholesale.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, id int64, permissions []string) (rbac.Role, error) {
	perms := dedupe(permissions)
	if err := s.registry.Validate(perms...); err != nil {
		return rbac.Role{}, err
	}
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	role.Permissions = rbac.KeyRefs(perms...)
	saved, err := s.store.SaveRole(ctx, role)
	if err != nil {
		return rbac.Role{}, err
	}
	invalidateErr := s.invalidate(ctx, saved.ID)
	s.audit(ctx, actorID, ActionRolePermissionsSet, saved.ID, map[string]any{"permissions": perms})
	if invalidateErr != nil {
		return rbac.Role{}, invalidateErr
	}
	return saved, nil
}

// invalidate drops every cached resolution. The role change is already
// stored, so a failure is reported as shared.ErrCacheInvalidation rather
// than undone.
func (s *Service) invalidate(ctx context.Context, roleID int64) error {
	if s.invalidator == nil {
		return nil
	}
	err := s.invalidator.InvalidateAll(ctx)
	if err == nil {
		return nil
	}
	if s.logger != nil {
		s.logger.Error("roles invalidate resolutions", slog.Int64("role_id", roleID), slog.Any("error", err))
	}
	return fmt.Errorf("%w: role %d: %v", shared.ErrCacheInvalidation, roleID, err)
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Audit(ctx, shared.AuditLog{
		EventID:  uuid.NewString(),
		ActorID:  actorID,
		Action:   action,
		Entity:   auditEntity,
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil && s.logger != nil {
		s.logger.Error("roles audit", slog.String("action", action), slog.Any("error", err))
	}
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = rbac.NormalizeKey(k)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

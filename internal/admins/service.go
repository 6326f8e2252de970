package admins

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tras-phone/admin-access/internal/rbac"
	"github.com/tras-phone/admin-access/internal/shared"
)

// Store persists admins.
type Store interface {
	rbac.PrincipalReader
	ListAdmins(ctx context.Context) ([]Admin, error)
	GetAdmin(ctx context.Context, id int64) (Admin, error)
	UpdateAccess(ctx context.Context, id int64, patch AccessPatch) (Admin, error)
}

// PrincipalInvalidator drops the cached resolution of one admin.
type PrincipalInvalidator interface {
	InvalidatePrincipal(ctx context.Context, id int64) error
}

// Auditor receives an entry for every successful mutation.
type Auditor interface {
	Audit(ctx context.Context, entry shared.AuditLog) error
}

// Service manages the access data of admins.
type Service struct {
	store       Store
	roles       rbac.RoleReader
	registry    *rbac.Registry
	flags       rbac.Set
	invalidator PrincipalInvalidator
	auditor     Auditor
	logger      *slog.Logger
}

// NewService builds Service instance. flags lists the declared feature
// flags; invalidator, auditor and logger may be nil.
func NewService(store Store, roles rbac.RoleReader, registry *rbac.Registry, flags []string, invalidator PrincipalInvalidator, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		roles:       roles,
		registry:    registry,
		flags:       rbac.NewSet(flags...),
		invalidator: invalidator,
		auditor:     auditor,
		logger:      logger,
	}
}

// ListAdmins returns all admins.
func (s *Service) ListAdmins(ctx context.Context) ([]Admin, error) {
	return s.store.ListAdmins(ctx)
}

// GetAdmin returns one admin.
func (s *Service) GetAdmin(ctx context.Context, id int64) (Admin, error) {
	return s.store.GetAdmin(ctx, id)
}

// UpdateAccess validates and applies patch, then drops the admin's cached
// resolution so the next request sees the change. When the cache cannot be
// invalidated the stored change stands and an error wrapping
// shared.ErrCacheInvalidation is returned.
func (s *Service) UpdateAccess(ctx context.Context, actorID, id int64, patch AccessPatch) (Admin, error) {
	current, err := s.store.GetAdmin(ctx, id)
	if err != nil {
		return Admin{}, err
	}
	if patch.IsEmpty() {
		return current, nil
	}
	meta := map[string]any{}

	if patch.DirectPermissions != nil {
		perms := normalizeKeys(*patch.DirectPermissions)
		if err := s.registry.Validate(perms...); err != nil {
			return Admin{}, err
		}
		patch.DirectPermissions = &perms
		meta["direct_permissions"] = perms
	}
	if patch.RoleIDs != nil {
		ids, err := s.checkRoles(ctx, *patch.RoleIDs)
		if err != nil {
			return Admin{}, err
		}
		patch.RoleIDs = &ids
		meta["role_ids"] = ids
	}
	if patch.FeatureFlags != nil {
		flags := normalizeKeys(*patch.FeatureFlags)
		for _, f := range flags {
			if !s.flags.Has(f) {
				return Admin{}, fmt.Errorf("%w: %q", ErrUnknownFeatureFlag, f)
			}
		}
		patch.FeatureFlags = &flags
		meta["feature_flags"] = flags
	}
	if patch.IsActive != nil {
		meta["is_active"] = *patch.IsActive
	}

	updated, err := s.store.UpdateAccess(ctx, id, patch)
	if err != nil {
		return Admin{}, err
	}
	var invalidateErr error
	if s.invalidator != nil {
		if err := s.invalidator.InvalidatePrincipal(ctx, id); err != nil {
			invalidateErr = fmt.Errorf("%w: admin %d: %v", shared.ErrCacheInvalidation, id, err)
			if s.logger != nil {
				s.logger.Error("admins invalidate resolution", slog.Int64("admin_id", id), slog.Any("error", err))
			}
		}
	}
	if s.auditor != nil {
		err := s.auditor.Audit(ctx, shared.AuditLog{
			EventID:  uuid.NewString(),
			ActorID:  actorID,
			Action:   ActionAccessUpdated,
			Entity:   "admin",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     meta,
			At:       time.Now().UTC(),
		})
		if err != nil && s.logger != nil {
			s.logger.Error("admins audit", slog.Any("error", err))
		}
	}
	if invalidateErr != nil {
		return Admin{}, invalidateErr
	}
	return updated, nil
}

func (s *Service) checkRoles(ctx context.Context, ids []int64) ([]int64, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })
	if len(unique) == 0 {
		return unique, nil
	}
	found, err := s.roles.GetRolesByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	for _, role := range found {
		delete(seen, role.ID)
	}
	if len(seen) > 0 {
		missing := make([]string, 0, len(seen))
		for id := range seen {
			missing = append(missing, strconv.FormatInt(id, 10))
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", rbac.ErrRoleNotFound, strings.Join(missing, ","))
	}
	return unique, nil
}

// normalizeKeys sorts and dedupes values. A blank entry survives as "" so
// validation rejects it.
func normalizeKeys(values []string) []string {
	set := rbac.NewSet()
	var blanks bool
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			blanks = true
			continue
		}
		set.Add(v)
	}
	out := set.Sorted()
	if blanks {
		out = append(out, "")
	}
	return out
}

package roles

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
	"github.com/tras-phone/admin-access/internal/rbac"
	"github.com/tras-phone/admin-access/internal/shared"
)

type memoryStore struct {
	roles   map[int64]rbac.Role
	nextID  int64
	saveErr error
}

func newMemoryStore(roles ...rbac.Role) *memoryStore {
	s := &memoryStore{roles: map[int64]rbac.Role{}, nextID: 100}
	for _, r := range roles {
		s.roles[r.ID] = r
	}
	return s
}

func (s *memoryStore) GetRolesByIDs(_ context.Context, ids []int64) ([]rbac.Role, error) {
	var out []rbac.Role
	for _, id := range ids {
		if r, ok := s.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) GetRole(_ context.Context, id int64) (rbac.Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrRoleNotFound
	}
	return r, nil
}

func (s *memoryStore) ListRoles(_ context.Context) ([]rbac.Role, error) {
	out := make([]rbac.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) SaveRole(_ context.Context, role rbac.Role) (rbac.Role, error) {
	if s.saveErr != nil {
		return rbac.Role{}, s.saveErr
	}
	for _, existing := range s.roles {
		if existing.Name == role.Name && existing.ID != role.ID {
			return rbac.Role{}, httpx.ErrDuplicate
		}
	}
	if role.ID == 0 {
		s.nextID++
		role.ID = s.nextID
	}
	s.roles[role.ID] = role
	return role, nil
}

func (s *memoryStore) DeleteRoleRecord(_ context.Context, id int64) error {
	if _, ok := s.roles[id]; !ok {
		return rbac.ErrRoleNotFound
	}
	delete(s.roles, id)
	return nil
}

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) InvalidateAll(context.Context) error {
	c.calls++
	return c.err
}

type recordingAuditor struct {
	entries []shared.AuditLog
	err     error
}

func (a *recordingAuditor) Audit(_ context.Context, entry shared.AuditLog) error {
	a.entries = append(a.entries, entry)
	return a.err
}

type serviceFixture struct {
	svc         *Service
	store       *memoryStore
	invalidator *countingInvalidator
	auditor     *recordingAuditor
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	reg := rbac.MustRegistry([]rbac.Permission{
		{Key: "orders.view"}, {Key: "orders.update"}, {Key: "orders.refund"}, {Key: "roles.view"},
	})
	store := newMemoryStore(
		rbac.Role{ID: 1, Name: "Administrator", IsSystem: true, IsActive: true, Permissions: rbac.KeyRefs("orders.view", "roles.view")},
		rbac.Role{ID: 2, Name: "Support", IsActive: true, Permissions: rbac.KeyRefs("orders.view")},
	)
	inv := &countingInvalidator{}
	aud := &recordingAuditor{}
	return serviceFixture{
		svc:         NewService(store, reg, inv, aud, nil),
		store:       store,
		invalidator: inv,
		auditor:     aud,
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateRoleNormalizesAndAudits(t *testing.T) {
	f := newServiceFixture(t)
	role, err := f.svc.CreateRole(context.Background(), 9, CreateRoleInput{
		Name:        "  Refunds  ",
		Permissions: []string{"orders.refund", " ORDERS.view", "orders.refund"},
	})
	require.NoError(t, err)
	require.NotZero(t, role.ID)
	require.Equal(t, "Refunds", role.Name)
	require.False(t, role.IsSystem)
	require.True(t, role.IsActive)
	require.Equal(t, []string{"orders.refund", "orders.view"}, role.PermissionKeys())

	require.Len(t, f.auditor.entries, 1)
	entry := f.auditor.entries[0]
	require.Equal(t, ActionRoleCreated, entry.Action)
	require.Equal(t, int64(9), entry.ActorID)
	require.NotEmpty(t, entry.EventID)
	require.Zero(t, f.invalidator.calls)
}

func TestCreateRoleRejectsBlankName(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreateRole(context.Background(), 9, CreateRoleInput{Name: "   "})
	require.ErrorIs(t, err, ErrRoleNameRequired)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateRoleRejectsUnknownPermission(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreateRole(context.Background(), 9, CreateRoleInput{
		Name:        "Ghosts",
		Permissions: []string{"orders.view", "ghost.haunt"},
	})
	require.ErrorIs(t, err, rbac.ErrUnknownPermission)
	require.Contains(t, err.Error(), "ghost.haunt")
	require.Empty(t, f.auditor.entries)
}

func TestCreateRoleHonoursInactiveFlag(t *testing.T) {
	f := newServiceFixture(t)
	role, err := f.svc.CreateRole(context.Background(), 9, CreateRoleInput{Name: "Draft", IsActive: ptr(false)})
	require.NoError(t, err)
	require.False(t, role.IsActive)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreateRole(context.Background(), 9, CreateRoleInput{Name: "Support"})
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestUpdateRoleEmptyPatchIsNoop(t *testing.T) {
	f := newServiceFixture(t)
	role, err := f.svc.UpdateRole(context.Background(), 9, 2, RolePatch{})
	require.NoError(t, err)
	require.Equal(t, "Support", role.Name)
	require.Empty(t, f.auditor.entries)
	require.Zero(t, f.invalidator.calls)
}

func TestUpdateRoleRenameDoesNotInvalidate(t *testing.T) {
	f := newServiceFixture(t)
	role, err := f.svc.UpdateRole(context.Background(), 9, 2, RolePatch{Name: ptr("Customer Care")})
	require.NoError(t, err)
	require.Equal(t, "Customer Care", role.Name)
	require.Zero(t, f.invalidator.calls)
	require.Len(t, f.auditor.entries, 1)
	require.Equal(t, "Customer Care", f.auditor.entries[0].Meta["name"])
}

func TestUpdateRolePermissionsInvalidate(t *testing.T) {
	f := newServiceFixture(t)
	role, err := f.svc.UpdateRole(context.Background(), 9, 2, RolePatch{Permissions: ptr([]string{"orders.update"})})
	require.NoError(t, err)
	require.Equal(t, []string{"orders.update"}, role.PermissionKeys())
	require.Equal(t, 1, f.invalidator.calls)
}

func TestUpdateRoleDeactivationInvalidates(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.UpdateRole(context.Background(), 9, 2, RolePatch{IsActive: ptr(false)})
	require.NoError(t, err)
	require.False(t, f.store.roles[2].IsActive)
	require.Equal(t, 1, f.invalidator.calls)
}

func TestUpdateSystemRoleRenameRejected(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.UpdateRole(context.Background(), 9, 1, RolePatch{Name: ptr("Root")})
	require.ErrorIs(t, err, rbac.ErrSystemRoleImmutable)
	require.ErrorIs(t, err, httpx.ErrConflict)

	_, err = f.svc.UpdateRole(context.Background(), 9, 1, RolePatch{LocalizedName: ptr("Racine")})
	require.ErrorIs(t, err, rbac.ErrSystemRoleImmutable)
	require.Equal(t, "Administrator", f.store.roles[1].Name)
}

func TestUpdateSystemRoleSameNameAndPermissionsAllowed(t *testing.T) {
	f := newServiceFixture(t)
	role, err := f.svc.UpdateRole(context.Background(), 9, 1, RolePatch{
		Name:        ptr(" Administrator "),
		Permissions: ptr([]string{"orders.view", "orders.refund", "roles.view"}),
	})
	require.NoError(t, err)
	require.True(t, role.IsSystem)
	require.ElementsMatch(t, []string{"orders.view", "orders.refund", "roles.view"}, role.PermissionKeys())
}

func TestUpdateSystemRoleActivationAndDescriptionAllowed(t *testing.T) {
	f := newServiceFixture(t)
	role, err := f.svc.UpdateRole(context.Background(), 9, 1, RolePatch{
		IsActive:    ptr(false),
		Description: ptr("  Full access  "),
	})
	require.NoError(t, err)
	require.True(t, role.IsSystem)
	require.False(t, f.store.roles[1].IsActive)
	require.Equal(t, "Full access", f.store.roles[1].Description)
	require.Equal(t, "Administrator", f.store.roles[1].Name)
	require.Equal(t, 1, f.invalidator.calls)
	require.Equal(t, false, f.auditor.entries[0].Meta["is_active"])

	_, err = f.svc.UpdateRole(context.Background(), 9, 1, RolePatch{IsActive: ptr(true)})
	require.NoError(t, err)
	require.True(t, f.store.roles[1].IsActive)
	require.Equal(t, 2, f.invalidator.calls)
}

func TestUpdateRoleNotFound(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.UpdateRole(context.Background(), 9, 404, RolePatch{Name: ptr("x")})
	require.ErrorIs(t, err, rbac.ErrRoleNotFound)
}

func TestDeleteRole(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.svc.DeleteRole(context.Background(), 9, 2))
	_, ok := f.store.roles[2]
	require.False(t, ok)
	require.Equal(t, 1, f.invalidator.calls)
	require.Equal(t, ActionRoleDeleted, f.auditor.entries[0].Action)
	require.Equal(t, "2", f.auditor.entries[0].EntityID)
}

func TestDeleteSystemRoleRejected(t *testing.T) {
	f := newServiceFixture(t)
	err := f.svc.DeleteRole(context.Background(), 9, 1)
	require.ErrorIs(t, err, rbac.ErrSystemRoleImmutable)
	_, ok := f.store.roles[1]
	require.True(t, ok)
	require.Zero(t, f.invalidator.calls)
}

func TestSetRolePermissionsReplacesWholesale(t *testing.T) {
	f := newServiceFixture(t)
	role, err := f.svc.SetRolePermissions(context.Background(), 9, 2, []string{"orders.refund", "orders.update"})
	require.NoError(t, err)
	require.Equal(t, []string{"orders.refund", "orders.update"}, role.PermissionKeys())
	require.Equal(t, ActionRolePermissionsSet, f.auditor.entries[0].Action)
	require.Equal(t, 1, f.invalidator.calls)

	role, err = f.svc.SetRolePermissions(context.Background(), 9, 2, nil)
	require.NoError(t, err)
	require.Empty(t, role.PermissionKeys())
}

func TestSetRolePermissionsValidatesBeforeLookup(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.SetRolePermissions(context.Background(), 9, 404, []string{"nope"})
	require.ErrorIs(t, err, rbac.ErrUnknownPermission)
}

func TestAuditFailureDoesNotUndoMutation(t *testing.T) {
	f := newServiceFixture(t)
	f.auditor.err = errors.New("queue down")
	role, err := f.svc.SetRolePermissions(context.Background(), 9, 2, []string{"orders.update"})
	require.NoError(t, err)
	require.Equal(t, []string{"orders.update"}, f.store.roles[2].PermissionKeys())
	require.Equal(t, int64(2), role.ID)
}

func TestInvalidationFailureIsReported(t *testing.T) {
	f := newServiceFixture(t)
	f.invalidator.err = errors.New("redis down")

	_, err := f.svc.SetRolePermissions(context.Background(), 9, 2, []string{"orders.update"})
	require.ErrorIs(t, err, shared.ErrCacheInvalidation)
	require.Equal(t, []string{"orders.update"}, f.store.roles[2].PermissionKeys())
	require.Len(t, f.auditor.entries, 1)

	_, err = f.svc.UpdateRole(context.Background(), 9, 1, RolePatch{IsActive: ptr(false)})
	require.ErrorIs(t, err, shared.ErrCacheInvalidation)
	require.False(t, f.store.roles[1].IsActive)

	err = f.svc.DeleteRole(context.Background(), 9, 2)
	require.ErrorIs(t, err, shared.ErrCacheInvalidation)

	_, err = f.svc.UpdateRole(context.Background(), 9, 1, RolePatch{Description: ptr("no holders affected")})
	require.NoError(t, err)
}

func TestStoreErrorPropagates(t *testing.T) {
	f := newServiceFixture(t)
	f.store.saveErr = errors.New("connection reset")
	_, err := f.svc.CreateRole(context.Background(), 9, CreateRoleInput{Name: "Anything"})
	require.EqualError(t, err, "connection reset")
	require.Empty(t, f.auditor.entries)
}

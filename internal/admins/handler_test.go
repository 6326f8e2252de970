package admins

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tras-phone/admin-access/internal/rbac"
	"github.com/tras-phone/admin-access/internal/shared"
)

type resolvedTable map[int64]rbac.ResolvedPrincipal

func (r resolvedTable) ResolveByID(_ context.Context, id int64) (rbac.ResolvedPrincipal, error) {
	return r[id], nil
}

func newAdminsRouter(t *testing.T) (chi.Router, adminFixture) {
	t.Helper()
	f := newAdminFixture(t)
	principals := resolvedTable{
		1: {Active: true, Permissions: rbac.NewSet(shared.PermAdminsView), FeatureFlags: rbac.NewSet()},
		2: {Active: true, Permissions: rbac.NewSet(shared.PermAdminsView, shared.PermAdminsManageAccess), FeatureFlags: rbac.NewSet()},
		3: {Active: true, Permissions: rbac.NewSet(shared.PermAdminsManageAccess), FeatureFlags: rbac.NewSet()},
	}
	h := NewHandler(nil, f.svc, rbac.Middleware{Resolver: principals})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id, err := strconv.ParseInt(req.Header.Get("X-Test-Admin"), 10, 64); err == nil {
				ctx := rbac.ContextWithAdminID(req.Context(), id)
				req = req.WithContext(rbac.ContextWithResolved(ctx, principals[id]))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/admins", h.MountRoutes)
	return r, f
}

func send(r http.Handler, method, path, admin, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Test-Admin", admin)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestListAndGetAdmins(t *testing.T) {
	r, _ := newAdminsRouter(t)

	rr := send(r, http.MethodGet, "/admins", "1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Admins []Admin `json:"admins"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Admins, 1)
	require.Equal(t, "ops@example.com", list.Admins[0].Email)

	require.Equal(t, http.StatusOK, send(r, http.MethodGet, "/admins/7", "1", "").Code)
	require.Equal(t, http.StatusNotFound, send(r, http.MethodGet, "/admins/99", "1", "").Code)
	require.Equal(t, http.StatusNotFound, send(r, http.MethodGet, "/admins/x", "1", "").Code)
}

func TestAdminsWithoutViewPermissionAreForbidden(t *testing.T) {
	r, f := newAdminsRouter(t)
	require.Equal(t, http.StatusForbidden, send(r, http.MethodGet, "/admins", "3", "").Code)
	rr := send(r, http.MethodPatch, "/admins/7/access", "3", `{"isActive":false}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Zero(t, f.store.updates)
}

func TestUpdateAccessNeedsManagePermission(t *testing.T) {
	r, f := newAdminsRouter(t)
	rr := send(r, http.MethodPatch, "/admins/7/access", "1", `{"isActive":false}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.True(t, f.store.admins[7].IsActive)
}

func TestUpdateAccessEndpoint(t *testing.T) {
	r, f := newAdminsRouter(t)
	rr := send(r, http.MethodPatch, "/admins/7/access", "2", `{"roleIds":[2],"directPermissions":["orders.refund"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var admin Admin
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &admin))
	require.Equal(t, []int64{2}, admin.RoleIDs)
	require.Equal(t, []string{"orders.refund"}, admin.DirectPermissions)
	require.Equal(t, int64(2), f.audit.entries[0].ActorID)
	require.Equal(t, []int64{7}, f.invalidated.ids)
}

func TestUpdateAccessEndpointValidation(t *testing.T) {
	r, _ := newAdminsRouter(t)
	cases := map[string]string{
		"unknown field":   `{"isSuperAdmin":true}`,
		"negative role":   `{"roleIds":[-1]}`,
		"unknown role":    `{"roleIds":[42]}`,
		"unknown perm":    `{"directPermissions":["orders.delete"]}`,
		"undeclared flag": `{"featureFlags":["dark_mode"]}`,
		"malformed":       `{"roleIds":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := send(r, http.MethodPatch, "/admins/7/access", "2", body)
			if name == "unknown role" {
				require.Equal(t, http.StatusNotFound, rr.Code)
				return
			}
			require.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

package roles

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
	"github.com/tras-phone/admin-access/internal/rbac"
	"github.com/tras-phone/admin-access/internal/shared"
)

// AdminService is the subset of Service used by the handler.
type AdminService interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	CreateRole(ctx context.Context, actorID int64, input CreateRoleInput) (rbac.Role, error)
	UpdateRole(ctx context.Context, actorID, id int64, patch RolePatch) (rbac.Role, error)
	DeleteRole(ctx context.Context, actorID, id int64) error
	SetRolePermissions(ctx context.Context, actorID, id int64, permissions []string) (rbac.Role, error)
}

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   AdminService
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service AdminService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesView, shared.PermRolesCreate))
		r.Post("/", h.createRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesView, shared.PermRolesUpdate))
		r.Patch("/{id}", h.updateRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesUpdate, shared.PermPermissionsAssign))
		r.Put("/{id}/permissions", h.setPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesView, shared.PermRolesDelete))
		r.Delete("/{id}", h.deleteRole)
	})
}

type createRoleRequest struct {
	Name          string   `json:"name" validate:"required,max=64"`
	LocalizedName string   `json:"localizedName" validate:"max=64"`
	Description   string   `json:"description" validate:"max=255"`
	Permissions   []string `json:"permissions" validate:"max=500"`
	IsActive      *bool    `json:"isActive"`
}

type updateRoleRequest struct {
	Name          *string   `json:"name" validate:"omitempty,max=64"`
	LocalizedName *string   `json:"localizedName" validate:"omitempty,max=64"`
	Description   *string   `json:"description" validate:"omitempty,max=255"`
	IsActive      *bool     `json:"isActive"`
	Permissions   *[]string `json:"permissions" validate:"omitempty,max=500"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,max=500"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(req.Permissions) > 0 && !canAssignPermissions(r) {
		httpx.Forbidden(w)
		return
	}
	role, err := h.service.CreateRole(r.Context(), actorID(r), CreateRoleInput{
		Name:          req.Name,
		LocalizedName: req.LocalizedName,
		Description:   req.Description,
		Permissions:   req.Permissions,
		IsActive:      req.IsActive,
	})
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRoleRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Permissions != nil && !canAssignPermissions(r) {
		httpx.Forbidden(w)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), actorID(r), id, RolePatch{
		Name:          req.Name,
		LocalizedName: req.LocalizedName,
		Description:   req.Description,
		IsActive:      req.IsActive,
		Permissions:   req.Permissions,
	})
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setPermissionsRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.SetRolePermissions(r.Context(), actorID(r), id, req.Permissions)
	if err != nil {
		h.fail(w, "set role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), actorID(r), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		return err
	}
	if err := h.validator.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn("roles "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func roleID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, rbac.ErrRoleNotFound
	}
	return id, nil
}

// canAssignPermissions reports whether the caller may set permission lists,
// which create and update accept alongside their other fields.
func canAssignPermissions(r *http.Request) bool {
	resolved, ok := rbac.ResolvedFromContext(r.Context())
	return ok && rbac.CanAccess(resolved, rbac.AllOf(shared.PermPermissionsAssign))
}

func actorID(r *http.Request) int64 {
	id, _ := rbac.AdminIDFromContext(r.Context())
	return id
}

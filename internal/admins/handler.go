package admins

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

// AccessService is the subset of Service used by the handler.
type AccessService interface {
	ListAdmins(ctx context.Context) ([]Admin, error)
	GetAdmin(ctx context.Context, id int64) (Admin, error)
	UpdateAccess(ctx context.Context, actorID, id int64, patch AccessPatch) (Admin, error)
}

// Handler exposes admin access endpoints.
type Handler struct {
	logger    *slog.Logger
	service   AccessService
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service AccessService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAdminsView))
		r.Get("/", h.listAdmins)
		r.Get("/{id}", h.getAdmin)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermAdminsView, shared.PermAdminsManageAccess))
		r.Patch("/{id}/access", h.updateAccess)
	})
}

type updateAccessRequest struct {
	IsActive          *bool     `json:"isActive"`
	RoleIDs           *[]int64  `json:"roleIds" validate:"omitempty,max=100,dive,gt=0"`
	DirectPermissions *[]string `json:"directPermissions" validate:"omitempty,max=500"`
	FeatureFlags      *[]string `json:"featureFlags" validate:"omitempty,max=50"`
}

func (h *Handler) listAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.service.ListAdmins(r.Context())
	if err != nil {
		h.fail(w, "list admins", err)
		return
	}
	if admins == nil {
		admins = []Admin{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"admins": admins})
}

func (h *Handler) getAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := adminID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	admin, err := h.service.GetAdmin(r.Context(), id)
	if err != nil {
		h.fail(w, "get admin", err)
		return
	}
	httpx.JSON(w, http.StatusOK, admin)
}

func (h *Handler) updateAccess(w http.ResponseWriter, r *http.Request) {
	id, err := adminID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateAccessRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	actor, _ := rbac.AdminIDFromContext(r.Context())
	admin, err := h.service.UpdateAccess(r.Context(), actor, id, AccessPatch{
		IsActive:          req.IsActive,
		RoleIDs:           req.RoleIDs,
		DirectPermissions: req.DirectPermissions,
		FeatureFlags:      req.FeatureFlags,
	})
	if err != nil {
		h.fail(w, "update access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, admin)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn("admins "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func adminID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, rbac.ErrPrincipalNotFound
	}
	return id, nil
}

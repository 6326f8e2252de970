package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
	"github.com/tras-phone/admin-access/internal/rbac"
	"github.com/tras-phone/admin-access/internal/shared"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.With(h.rbac.RequireAny(shared.PermAuditView)).Get("/audit", h.handleTimeline)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermAuditView, shared.PermAuditExport))
		gr.Use(limiter)
		gr.Get("/audit/export.csv", h.handleExport)
	})
}

// rateLimitKey limits exports per admin; the guard has already put the id in
// the context.
func rateLimitKey(r *http.Request) (string, error) {
	if id, ok := rbac.AdminIDFromContext(r.Context()); ok {
		return "admin:" + strconv.FormatInt(id, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

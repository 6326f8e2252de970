package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tras-phone/admin-access/internal/platform/httpx"
	"github.com/tras-phone/admin-access/internal/shared"
)

// Decision outcomes reported to a DecisionRecorder.
const (
	OutcomeAllow           = "allow"
	OutcomeDeny            = "deny"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

// PrincipalResolver resolves an admin id. Both Resolver and caching
// wrappers satisfy it.
type PrincipalResolver interface {
	ResolveByID(ctx context.Context, id int64) (ResolvedPrincipal, error)
}

// DecisionRecorder observes guard outcomes.
type DecisionRecorder interface {
	ObserveAccessDecision(route, outcome string)
}

// Middleware guards HTTP handlers with access requirements.
type Middleware struct {
	Resolver PrincipalResolver
	Logger   *slog.Logger
	Recorder DecisionRecorder
}

// RequireAny allows admins holding at least one of perms.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.Require(AnyOf(perms...))
}

// RequireAll allows admins holding every perm.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.Require(AllOf(perms...))
}

// Require resolves the current admin once per request and evaluates req.
// A nil req only demands an authenticated, active admin. Denials get the
// same 403 body whatever was missing.
func (m Middleware) Require(req *AccessRequirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			resolved, ok := ResolvedFromContext(ctx)
			if !ok {
				adminID, found := m.currentAdminID(r)
				if !found {
					m.record(r, OutcomeUnauthenticated)
					httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
					return
				}
				var err error
				resolved, err = m.Resolver.ResolveByID(ctx, adminID)
				if err != nil {
					m.record(r, OutcomeError)
					m.logError("rbac resolve", adminID, err)
					if IsConfigError(err) {
						httpx.Forbidden(w)
						return
					}
					httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
					return
				}
				ctx = ContextWithAdminID(ctx, adminID)
				ctx = ContextWithResolved(ctx, resolved)
				r = r.WithContext(ctx)
			}
			if !CanAccess(resolved, req) {
				m.record(r, OutcomeDeny)
				httpx.Forbidden(w)
				return
			}
			m.record(r, OutcomeAllow)
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentAdminID(r *http.Request) (int64, bool) {
	id, ok, err := shared.SessionAdminID(r.Context())
	if err != nil && m.Logger != nil {
		sess := shared.SessionFromContext(r.Context())
		m.Logger.Error("rbac parse admin id", slog.String("value", sess.User()))
	}
	return id, ok
}

func (m Middleware) record(r *http.Request, outcome string) {
	if m.Recorder == nil {
		return
	}
	m.Recorder.ObserveAccessDecision(routePattern(r), outcome)
}

func (m Middleware) logError(msg string, adminID int64, err error) {
	if m.Logger == nil {
		return
	}
	m.Logger.Error(msg, slog.Int64("admin_id", adminID), slog.Any("error", err))
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

type resolvedContextKey struct{}

type adminIDContextKey struct{}

// ContextWithResolved stores the resolved principal of the current request.
func ContextWithResolved(ctx context.Context, resolved ResolvedPrincipal) context.Context {
	return context.WithValue(ctx, resolvedContextKey{}, resolved)
}

// ResolvedFromContext returns the principal resolved by an earlier guard.
func ResolvedFromContext(ctx context.Context) (ResolvedPrincipal, bool) {
	resolved, ok := ctx.Value(resolvedContextKey{}).(ResolvedPrincipal)
	return resolved, ok
}

// ContextWithAdminID stores the authenticated admin id.
func ContextWithAdminID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, adminIDContextKey{}, id)
}

// AdminIDFromContext returns the admin id set by the guard.
func AdminIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(adminIDContextKey{}).(int64)
	return id, ok
}

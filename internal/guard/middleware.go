package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/shared"
)

// ErrUnknownPrincipal reports that a session's user no longer resolves to an
// active account. Sources return it when the user was deleted or deactivated
// after the session was issued; the middleware treats it as a deny rather
// than a server fault.
var ErrUnknownPrincipal = errors.New("guard: unknown principal")

// PrincipalSource resolves the acting principal and its granted permissions.
type PrincipalSource interface {
	Principal(ctx context.Context, userID int64) (Principal, PermissionSet, error)
}

// Middleware wires access checks into HTTP handlers.
type Middleware struct {
	Source PrincipalSource
	Logger *slog.Logger
}

// RequireAny passes requests whose principal holds at least one of the
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(Request{Required: perms, Mode: ModeAny})
}

// RequireAll passes requests whose principal holds every permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(Request{Required: perms, Mode: ModeAll})
}

// RequireSuperuser passes requests from superusers only, on top of any
// permission requirement.
func (m Middleware) RequireSuperuser(perms ...string) func(http.Handler) http.Handler {
	return m.require(Request{Required: perms, RequireSuperuser: true})
}

func (m Middleware) require(req Request) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(req.Required) == 0 && !req.RequireSuperuser {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", DeniedMessage)
				return
			}
			who, granted, err := m.Source.Principal(r.Context(), userID)
			if err != nil {
				if errors.Is(err, ErrUnknownPrincipal) {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", DeniedMessage)
					return
				}
				if m.Logger != nil {
					m.Logger.Error("guard resolve principal", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if res := Evaluate(granted, req, who); res.ShouldRender {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", DeniedMessage)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("guard parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

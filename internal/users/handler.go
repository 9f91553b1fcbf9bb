package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/guardpost/guardpost/internal/guard"
	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     guard.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw guard.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: mw, validator: validator.New()}
}

// MountRoutes registers user routes. Superuser toggles are additionally
// gated behind the superuser check.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
		r.Get("/{userID}/grants", h.listGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermUsersEdit))
		r.Post("/", h.createUser)
		r.Put("/{userID}/active", h.setActive)
		r.Put("/{userID}/grants", h.replaceGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireSuperuser(shared.PermUsersEdit))
		r.Put("/{userID}/superuser", h.setSuperuser)
	})
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=255"`
	Password string `json:"password" validate:"required,min=8"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

type replaceGrantsRequest struct {
	Permissions []string `json:"permissions" validate:"max=64,dive,required,max=128"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.CreateUser(r.Context(), h.actorID(r), req.Email, req.Name, req.Password)
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) setSuperuser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.SetSuperuser(r.Context(), h.actorID(r), id, req.Enabled)
	if err != nil {
		h.fail(w, "set superuser", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.SetActive(r.Context(), h.actorID(r), id, req.Enabled)
	if err != nil {
		h.fail(w, "set active", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	grants, err := h.service.Grants(r.Context(), id)
	if err != nil {
		h.fail(w, "list grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": grants})
}

func (h *Handler) replaceGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req replaceGrantsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ReplaceGrants(r.Context(), h.actorID(r), id, req.Permissions); err != nil {
		h.fail(w, "replace grants", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) actorID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateEmail):
		httpx.RespondError(w, httpx.ErrDuplicate)
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

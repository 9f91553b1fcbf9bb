package orgs

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

// Handler manages organization endpoints.
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

// MountRoutes registers organization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermOrgsView))
		r.Get("/", h.listOrganizations)
		r.Get("/{orgID}", h.getOrganization)
		r.Get("/{orgID}/grants", h.listGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermOrgsEdit))
		r.Post("/", h.createOrganization)
		r.Put("/{orgID}", h.updateOrganization)
		r.Delete("/{orgID}", h.deleteOrganization)
		r.Put("/{orgID}/grants", h.replaceGrants)
	})
}

type createOrgRequest struct {
	Slug string `json:"slug" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}

type updateOrgRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	IsActive bool   `json:"is_active"`
}

type replaceGrantsRequest struct {
	Permissions []string `json:"permissions" validate:"max=256,dive,required,max=128"`
}

func (h *Handler) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.service.ListOrganizations(r.Context())
	if err != nil {
		h.fail(w, "list organizations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (h *Handler) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}
	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		h.fail(w, "get organization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *Handler) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if !h.decode(w, r, &req) {
		return
	}
	org, err := h.service.CreateOrganization(r.Context(), h.actorID(r), req.Slug, req.Name)
	if err != nil {
		h.fail(w, "create organization", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, org)
}

func (h *Handler) updateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}
	var req updateOrgRequest
	if !h.decode(w, r, &req) {
		return
	}
	org, err := h.service.UpdateOrganization(r.Context(), h.actorID(r), id, req.Name, req.IsActive)
	if err != nil {
		h.fail(w, "update organization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *Handler) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteOrganization(r.Context(), h.actorID(r), id); err != nil {
		h.fail(w, "delete organization", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
	if !ok {
		return
	}
	grants, err := h.service.Grants(r.Context(), id)
	if err != nil {
		h.fail(w, "list grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (h *Handler) replaceGrants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orgID(w, r)
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

func (h *Handler) orgID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid organization id")
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
	case errors.Is(err, ErrDuplicateSlug):
		httpx.RespondError(w, httpx.ErrDuplicate)
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

package decision

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/guardpost/guardpost/internal/guard"
	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/shared"
)

// GrantSource resolves an organization's granted permission set.
type GrantSource interface {
	Grants(ctx context.Context, orgSlug string) (guard.PermissionSet, error)
}

// Enqueuer schedules decision records for asynchronous persistence.
type Enqueuer interface {
	EnqueueDecisionRecord(ctx context.Context, rec Record) error
}

// Handler serves the decision API.
type Handler struct {
	logger     *slog.Logger
	grants     GrantSource
	principals guard.PrincipalSource
	recorder   *Recorder
	queue      Enqueuer
	metrics    *observability.Metrics
	guard      guard.Middleware
	validator  *validator.Validate
}

// NewHandler constructs the decision handler. Queue, recorder and metrics
// may be nil.
func NewHandler(logger *slog.Logger, grants GrantSource, principals guard.PrincipalSource, recorder *Recorder, queue Enqueuer, metrics *observability.Metrics, mw guard.Middleware) *Handler {
	return &Handler{
		logger:     logger,
		grants:     grants,
		principals: principals,
		recorder:   recorder,
		queue:      queue,
		metrics:    metrics,
		guard:      mw,
		validator:  validator.New(),
	}
}

// MountRoutes registers decision routes. Evaluation is open to anonymous
// callers; the decision log is a management surface.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.evaluate)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermDecisionsView))
		r.Get("/recent", h.recent)
	})
}

type evaluateRequest struct {
	Org              string   `json:"org" validate:"omitempty,max=64"`
	Required         []string `json:"required" validate:"max=64,dive,max=128"`
	Mode             string   `json:"mode" validate:"omitempty,oneof=all any"`
	RequireSuperuser bool     `json:"require_superuser"`
	Content          string   `json:"content"`
	Fallback         string   `json:"fallback" validate:"omitempty,oneof=none message echo"`
}

type evaluateResponse struct {
	guard.Result
	Rendered bool   `json:"rendered"`
	Body     string `json:"body"`
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	granted, err := h.grants.Grants(r.Context(), req.Org)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("decision resolve grants", slog.String("org", req.Org), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	who := h.currentPrincipal(r)
	mode := guard.ParseMode(req.Mode)
	res := guard.Evaluate(granted, guard.Request{
		Required:         req.Required,
		Mode:             mode,
		RequireSuperuser: req.RequireSuperuser,
	}, who)

	fallback := guard.NoFallback()
	switch req.Fallback {
	case "message":
		fallback = guard.MessageFallback()
	case "echo":
		fallback = guard.DynamicFallback(echoFallback)
	}
	body, rendered := guard.Render(res, guard.StaticContent(req.Content), fallback)

	outcome := "deny"
	if res.ShouldRender {
		outcome = "allow"
	}
	h.metrics.ObserveDecision(mode.String(), outcome)
	h.record(r.Context(), req, res, who)

	httpx.JSON(w, http.StatusOK, evaluateResponse{Result: res, Rendered: rendered, Body: body})
}

// echoFallback renders the denial outcome itself so callers can surface why
// content was withheld.
func echoFallback(res guard.Result) string {
	return fmt.Sprintf("access denied (has_access=%t, has_superuser=%t)", res.HasAccess, res.HasSuperuser)
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	if h.recorder == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"decisions": []Record{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.recorder.Recent(r.Context(), limit)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("decision recent", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"decisions": records})
}

// currentPrincipal resolves the session user, degrading to anonymous on any
// failure: the decision path never errors on a missing or stale identity.
func (h *Handler) currentPrincipal(r *http.Request) guard.Principal {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || h.principals == nil {
		return nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	who, _, err := h.principals.Principal(r.Context(), id)
	if err != nil {
		return nil
	}
	return who
}

func (h *Handler) record(ctx context.Context, req evaluateRequest, res guard.Result, who guard.Principal) {
	if h.queue == nil {
		return
	}
	rec := Record{
		OrgSlug:      strings.ToLower(strings.TrimSpace(req.Org)),
		Mode:         guard.ParseMode(req.Mode).String(),
		Required:     req.Required,
		HasAccess:    res.HasAccess,
		HasSuperuser: res.HasSuperuser,
		ShouldRender: res.ShouldRender,
		At:           time.Now().UTC(),
	}
	if who != nil {
		rec.ActorID = who.GetID()
	}
	if err := h.queue.EnqueueDecisionRecord(ctx, rec); err != nil && h.logger != nil {
		h.logger.Warn("decision enqueue record", slog.Any("error", err))
	}
}

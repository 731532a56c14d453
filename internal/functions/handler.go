package functions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailhook/internal/platform/middleware"
	dErrors "mailhook/pkg/domain-errors"
	"mailhook/pkg/httputil"
)

// Handler serves the per-domain function management endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the function routes under /v1/domain/{domain}/function.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/domain/{domain}/function", func(r chi.Router) {
		r.Post("/", h.handlePut)
		r.Get("/", h.handleGet)
		r.Put("/", h.handleSettings)
		r.Delete("/", h.handleDelete)
	})
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domain := chi.URLParam(r, "domain")

	req, ok := httputil.Decode[PutRequest](w, r, h.logger)
	if !ok {
		return
	}

	ref, created, err := h.service.Put(ctx, domain, req)
	if err != nil {
		h.logError(r, "failed to deploy function", err)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, Info{Ref: *ref})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Get(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		h.logError(r, "failed to fetch function", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

type settingsRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[settingsRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.Enabled == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "enabled is required"))
		return
	}

	ref, err := h.service.SetEnabled(r.Context(), chi.URLParam(r, "domain"), *req.Enabled)
	if err != nil {
		h.logError(r, "failed to update function settings", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Info{Ref: *ref})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "domain")); err != nil {
		h.logError(r, "failed to delete function", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	ctx := r.Context()
	if code := dErrors.CodeOf(err); code != dErrors.CodeInternal && code != dErrors.CodeUpstreamUnavailable {
		h.logger.WarnContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"domain", chi.URLParam(r, "domain"),
			"error", err.Error(),
		)
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"domain", chi.URLParam(r, "domain"),
		"error", err.Error(),
	)
}

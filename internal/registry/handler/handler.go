// Package handler exposes the domain registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailhook/internal/platform/middleware"
	"mailhook/internal/registry/service"
	"mailhook/internal/routing"
	dErrors "mailhook/pkg/domain-errors"
	"mailhook/pkg/httputil"
)

// Service is the registry surface the handler depends on.
type Service interface {
	Register(ctx context.Context, domain, webhookURL string) (*service.Registration, error)
	Get(ctx context.Context, domain string) (*service.Registration, error)
	Update(ctx context.Context, domain, webhookURL string) (*service.Registration, error)
	Delete(ctx context.Context, domain string) error
	Resync(ctx context.Context) (routing.ResyncResult, error)
}

type Handler struct {
	registry Service
	logger   *slog.Logger
}

func New(registry Service, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register mounts the registry routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/domain/{domain}", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
	})
	r.Post("/v1/domains/sync", h.handleResync)
}

type domainRequest struct {
	Webhook string `json:"webhook"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[domainRequest](w, r, h.logger)
	if !ok {
		return
	}

	registration, err := h.registry.Register(r.Context(), chi.URLParam(r, "domain"), req.Webhook)
	if err != nil {
		h.logError(r, "domain registration failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, registration)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	registration, err := h.registry.Get(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		h.logError(r, "domain lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, registration)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[domainRequest](w, r, h.logger)
	if !ok {
		return
	}

	registration, err := h.registry.Update(r.Context(), chi.URLParam(r, "domain"), req.Webhook)
	if err != nil {
		h.logError(r, "domain update failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, registration)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "domain")); err != nil {
		h.logError(r, "domain deletion failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResync(w http.ResponseWriter, r *http.Request) {
	result, err := h.registry.Resync(r.Context())
	if err != nil {
		h.logError(r, "routing resync failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"domain", chi.URLParam(r, "domain"),
		"error", err.Error(),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeNotFound, dErrors.CodeConflict:
		h.logger.WarnContext(ctx, msg, attrs...)
	default:
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
}

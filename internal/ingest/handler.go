package ingest

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"mailhook/internal/platform/middleware"
	dErrors "mailhook/pkg/domain-errors"
	"mailhook/pkg/httputil"
)

// Handler accepts storage event notifications and drives the pipeline.
type Handler struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

func NewHandler(pipeline *Pipeline, logger *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/ingest", h.handleIngest)
}

// storageEvent mirrors the S3 event notification shape. Object keys arrive
// URL-encoded.
type storageEvent struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

type recordResult struct {
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// handleIngest processes every record in the notification and reports the
// per-record outcome with 202. Failed records are retried by the next
// delivery of the same notification; the delivery record keeps that safe.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	event, ok := httputil.Decode[storageEvent](w, r, h.logger)
	if !ok {
		return
	}
	if len(event.Records) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event contains no records"))
		return
	}

	results := make([]recordResult, 0, len(event.Records))
	for _, rec := range event.Records {
		bucket := rec.S3.Bucket.Name
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}

		outcome, err := h.pipeline.Run(ctx, bucket, key)
		result := recordResult{Bucket: bucket, Key: key, Outcome: string(outcome)}
		if err != nil {
			result.Outcome = "error"
			result.Error = "processing failed"
			h.logger.ErrorContext(ctx, "message processing failed",
				"request_id", requestID,
				"bucket", bucket,
				"key", key,
				"error", err.Error(),
			)
		}
		results = append(results, result)
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{"results": results})
}

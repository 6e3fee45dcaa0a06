package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/synaptiq/model-gateway/internal/catalog"
	"github.com/synaptiq/model-gateway/internal/domain"
	"github.com/synaptiq/model-gateway/internal/gateway"
)

type HandlerConfig struct {
	Gateway *gateway.Gateway
	Catalog catalog.Catalog

	// ReadyCheck reports whether downstream dependencies are reachable.
	// Nil means always ready.
	ReadyCheck func(ctx context.Context) error
}

type Handler struct {
	gateway    *gateway.Gateway
	catalog    catalog.Catalog
	readyCheck func(ctx context.Context) error
	mux        *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		gateway:    cfg.Gateway,
		catalog:    cfg.Catalog,
		readyCheck: cfg.ReadyCheck,
		mux:        http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/chat", h.handleChat)
	h.mux.HandleFunc("GET /v1/models", h.handleListModels)
	h.mux.HandleFunc("GET /v1/models/{modelID}", h.handleGetModel)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", h.handleHealthReady)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	userCtx, ok := userContextFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return
	}

	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	w.Header().Set("X-Request-ID", userCtx.RequestID)

	if req.Stream {
		h.handleStreamingChat(w, r, userCtx, req, start)
		return
	}

	resp, err := h.gateway.Chat(ctx, userCtx, req)
	if err != nil {
		writeGatewayError(w, err, userCtx.RequestID)
		return
	}

	slog.Info("chat completed",
		"request_id", userCtx.RequestID,
		"user_id", userCtx.UserID,
		"model", req.ModelID,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleStreamingChat(w http.ResponseWriter, r *http.Request, userCtx domain.UserContext, req domain.Request, start time.Time) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unavailable", "response writer does not support streaming")
		return
	}

	chunks, errs, err := h.gateway.StreamChat(ctx, userCtx, req)
	if err != nil {
		writeGatewayError(w, err, userCtx.RequestID)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				w.Write([]byte("data: [DONE]\n\n"))
				flusher.Flush()

				slog.Info("streaming chat completed",
					"request_id", userCtx.RequestID,
					"user_id", userCtx.UserID,
					"model", req.ModelID,
					"latency_ms", time.Since(start).Milliseconds(),
				)
				return
			}

			data, err := json.Marshal(chunk)
			if err != nil {
				slog.Error("failed to encode chunk", "error", err, "request_id", userCtx.RequestID)
				continue
			}
			w.Write([]byte("data: " + string(data) + "\n\n"))
			flusher.Flush()

		case err, ok := <-errs:
			if ok && err != nil {
				slog.Error("streaming error", "error", err, "request_id", userCtx.RequestID)
				writeStreamError(w, flusher, err)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.catalog.ListModels(r.Context())
	if err != nil {
		slog.Error("failed to list models", "error", err)
		writeError(w, http.StatusInternalServerError, "catalog_error", "could not list models")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

func (h *Handler) handleGetModel(w http.ResponseWriter, r *http.Request) {
	model, err := h.catalog.GetModel(r.Context(), r.PathValue("modelID"))
	if err != nil {
		writeGatewayError(w, err, r.Header.Get("X-Request-ID"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model)
}

func userContextFrom(r *http.Request) (domain.UserContext, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		return domain.UserContext{}, false
	}

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	return domain.UserContext{
		UserID:    userID,
		Email:     r.Header.Get("X-User-Email"),
		RequestID: requestID,
	}, true
}

func writeGatewayError(w http.ResponseWriter, err error, requestID string) {
	ge, ok := domain.AsGatewayError(err)
	if !ok {
		slog.Error("unclassified gateway error", "error", err, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	status := ge.HTTPStatus()
	if ge.Kind == domain.KindThrottling && ge.RetryAfterMs > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(ge.RetryAfterMs/1000, 10))
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "request_id", requestID, "kind", ge.Kind)
	} else {
		slog.Warn("request rejected", "error", err, "request_id", requestID, "kind", ge.Kind)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"error": map[string]any{
			"code":    ge.Code,
			"kind":    string(ge.Kind),
			"message": ge.Message,
		},
	}
	if ge.RetryAfterMs > 0 {
		body["error"].(map[string]any)["retryAfterMs"] = ge.RetryAfterMs
	}
	json.NewEncoder(w).Encode(body)
}

// writeStreamError emits a terminal error event. Headers are already sent
// by the time a stream fails, so the HTTP status cannot change.
func writeStreamError(w http.ResponseWriter, flusher http.Flusher, err error) {
	payload := map[string]any{"message": "stream failed"}
	if ge, ok := domain.AsGatewayError(err); ok {
		payload["code"] = ge.Code
		payload["kind"] = string(ge.Kind)
		payload["message"] = ge.Message
		if ge.RetryAfterMs > 0 {
			payload["retryAfterMs"] = ge.RetryAfterMs
		}
	}
	data, _ := json.Marshal(map[string]any{"error": payload})
	w.Write([]byte("data: " + string(data) + "\n\n"))
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

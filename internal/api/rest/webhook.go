package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/webhook"
)

// ReceiveWebhook handles POST /webhooks/{provider}
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	if !h.providers[provider] {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Unknown provider"})
		return
	}

	logger := h.logger.With(
		zap.String("provider", provider),
		zap.String("delivery_id", r.Header.Get("X-GitHub-Delivery")),
	)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while handling webhook", zap.Any("panic", rec), zap.Stack("stack"))
			writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		logger.Error("failed to read webhook body", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		logger.Error("webhook body too large", zap.Int64("limit", h.maxBodyBytes))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
		return
	}

	if err := webhook.VerifySignature(h.secret, body, r.Header.Get(webhook.SignatureHeader)); err != nil {
		logger.Warn("rejected webhook delivery", zap.Error(err))
		switch {
		case errors.Is(err, webhook.ErrNoSignature):
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "No signature found"})
		default:
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid signature"})
		}
		return
	}

	event := r.Header.Get(webhook.EventHeader(provider))
	logger = logger.With(zap.String("event", event))

	switch event {
	case webhook.EventPing:
		logger.Info("received ping")
		writeJSON(w, http.StatusOK, messageResponse{Message: "Pong"})
	case webhook.EventPush:
		// keep processing if the sender hangs up mid-delivery
		ctx := context.WithoutCancel(r.Context())
		if err := h.handlePush(ctx, body); err != nil {
			logger.Error("failed to process push", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	default:
		logger.Info("ignored webhook event")
		writeJSON(w, http.StatusOK, messageResponse{Message: "Ignored event"})
	}
}

func (h *Handler) handlePush(ctx context.Context, body []byte) error {
	push, err := webhook.ParsePush(body)
	if err != nil {
		return err
	}
	if _, err := h.processor.ProcessPush(ctx, push); err != nil {
		return fmt.Errorf("failed to process push for %s: %w", push.RepositoryName, err)
	}
	return nil
}

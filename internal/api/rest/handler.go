package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/broadcast"
	"github.com/clintrovert/taskhook/internal/pipeline"
	"github.com/clintrovert/taskhook/internal/webhook"
)

// PushProcessor handles decoded push deliveries
type PushProcessor interface {
	ProcessPush(ctx context.Context, push *webhook.PushEvent) (pipeline.Summary, error)
}

// Handler serves the webhook receiver and the event stream
type Handler struct {
	processor         PushProcessor
	hub               *broadcast.Hub
	secret            []byte
	providers         map[string]bool
	maxBodyBytes      int64
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

// Config configures a Handler
type Config struct {
	// Secret is the shared webhook secret. Empty disables signature checks.
	Secret            string
	Providers         []string
	MaxBodyBytes      int64
	HeartbeatInterval time.Duration
}

// NewHandler creates a new REST handler
func NewHandler(processor PushProcessor, hub *broadcast.Hub, cfg Config, logger *zap.Logger) *Handler {
	providers := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			providers[p] = true
		}
	}
	if len(providers) == 0 {
		providers["github"] = true
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 25 << 20
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	if cfg.Secret == "" {
		logger.Warn("WEBHOOK_SECRET not set, accepting unsigned webhook deliveries")
	}

	return &Handler{
		processor:         processor,
		hub:               hub,
		secret:            []byte(cfg.Secret),
		providers:         providers,
		maxBodyBytes:      maxBody,
		heartbeatInterval: heartbeat,
		logger:            logger,
	}
}

// RegisterWebhookRoutes registers the inbound webhook routes
func (h *Handler) RegisterWebhookRoutes(r chi.Router) {
	r.Post("/webhooks/{provider}", h.ReceiveWebhook)
}

// RegisterRoutes registers REST API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.StreamEvents)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

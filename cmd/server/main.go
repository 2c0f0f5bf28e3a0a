package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	grpcapi "github.com/clintrovert/taskhook/internal/api/grpc"
	"github.com/clintrovert/taskhook/internal/api/rest"
	"github.com/clintrovert/taskhook/internal/broadcast"
	"github.com/clintrovert/taskhook/internal/classifier"
	"github.com/clintrovert/taskhook/internal/config"
	"github.com/clintrovert/taskhook/internal/github"
	"github.com/clintrovert/taskhook/internal/jira"
	"github.com/clintrovert/taskhook/internal/mirror"
	"github.com/clintrovert/taskhook/internal/pipeline"
	"github.com/clintrovert/taskhook/internal/store"
	"github.com/clintrovert/taskhook/internal/telemetry"
	"github.com/clintrovert/taskhook/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:  "taskhook",
		Stdout:       cfg.MetricsStdout,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		logger.Fatal("failed to create metrics", zap.Error(err))
	}

	// Open store
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()

	// Create classifier
	cls, err := classifier.New(classifier.Config{
		Provider:        cfg.ClassifierProvider,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create classifier", zap.Error(err))
	}

	hub := broadcast.NewHub(logger, metrics)
	p := pipeline.New(db, cls, hub, logger, pipeline.Options{
		ClassifierTimeout: cfg.ClassifierTimeout,
		Metrics:           metrics,
	})

	// Create REST API handler
	restHandler := rest.NewHandler(p, hub, rest.Config{
		Secret:    cfg.WebhookSecret,
		Providers: cfg.WebhookProviders,
	}, logger)

	// Setup REST API
	router := chi.NewRouter()
	restHandler.RegisterWebhookRoutes(router)
	router.Route("/api/v1", func(r chi.Router) {
		restHandler.RegisterRoutes(r)
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Start REST server
	restAddr := fmt.Sprintf(":%s", cfg.RESTPort)
	restServer := &http.Server{
		Addr:    restAddr,
		Handler: router,
		// ends event streams on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info("starting REST API server", zap.String("address", restAddr))
		if err := restServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start REST server", zap.Error(err))
		}
	}()

	// Start gRPC server
	grpcAddr := fmt.Sprintf(":%s", cfg.GRPCPort)
	grpcListener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcSrv := grpc.NewServer()
	grpcapi.NewServer(hub, logger).Register(grpcSrv)

	go func() {
		logger.Info("starting gRPC server", zap.String("address", grpcAddr))
		if err := grpcSrv.Serve(grpcListener); err != nil {
			logger.Fatal("failed to start gRPC server", zap.Error(err))
		}
	}()

	// Jira import
	if cfg.JiraEnabled() {
		jiraClient, err := jira.NewClient(cfg.JiraBaseURL, cfg.JiraUsername, cfg.JiraToken, cfg.JiraProjectKey, cfg.JiraCustomField, logger)
		if err != nil {
			logger.Fatal("failed to create jira client", zap.Error(err))
		}
		githubClient := github.NewClient(cfg.GitHubToken, logger)
		poller := jira.NewPoller(jiraClient, githubClient, db, cfg.JiraPollInterval, logger)
		go poller.Start(ctx)
	} else {
		logger.Info("jira not configured, task import disabled")
	}

	// Completion mirror
	if cfg.MirrorEnabled {
		temporalClient, err := temporal.NewClient(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TaskQueue, logger)
		if err != nil {
			logger.Fatal("failed to create temporal client", zap.Error(err))
		}
		defer temporalClient.Close()

		orchestrator := mirror.NewOrchestrator(hub, temporalClient, logger)
		go func() {
			if err := orchestrator.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("mirror orchestrator failed", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	cancel()

	// Shutdown servers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("REST server shutdown incomplete", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("failed to flush metrics", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

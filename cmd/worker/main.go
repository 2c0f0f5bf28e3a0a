package main

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/activities"
	"github.com/clintrovert/taskhook/internal/config"
	"github.com/clintrovert/taskhook/internal/jira"
	workflows "github.com/clintrovert/taskhook/internal/temporal/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.JiraEnabled() {
		logger.Fatal("worker requires JIRA_BASE_URL, JIRA_USERNAME, JIRA_TOKEN and JIRA_PROJECT_KEY")
	}

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("failed to create temporal client", zap.Error(err))
	}
	defer c.Close()

	// Create Jira client
	jiraClient, err := jira.NewClient(cfg.JiraBaseURL, cfg.JiraUsername, cfg.JiraToken, cfg.JiraProjectKey, cfg.JiraCustomField, logger)
	if err != nil {
		logger.Fatal("failed to create jira client", zap.Error(err))
	}

	// Create worker
	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.MirrorCompletionWorkflow)
	w.RegisterActivity(activities.NewJiraActivities(jiraClient, cfg.JiraDoneStatus))

	logger.Info("starting worker",
		zap.String("task_queue", cfg.TaskQueue),
		zap.String("namespace", cfg.TemporalNamespace),
	)

	// Run blocks until interrupted
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}

	logger.Info("shutting down worker")
}

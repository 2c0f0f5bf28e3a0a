package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/backfill"
	"github.com/clintrovert/taskhook/internal/broadcast"
	"github.com/clintrovert/taskhook/internal/classifier"
	"github.com/clintrovert/taskhook/internal/config"
	"github.com/clintrovert/taskhook/internal/github"
	"github.com/clintrovert/taskhook/internal/pipeline"
	"github.com/clintrovert/taskhook/internal/store"
	"github.com/clintrovert/taskhook/internal/webhook"
)

type options struct {
	repoPath  string
	remote    string
	branch    string
	since     string
	limit     int
	batchSize int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay commit history through the task completion pipeline",
		Long: `backfill classifies existing commits and completes the tasks they close,
exactly as if the commits had arrived in a push delivery. Completing a task
twice is a no-op, so the same history can be replayed safely.`,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.repoPath, "repo-path", "", "path to a local clone to read history from")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "GitHub repository (owner/name) to list history from")
	cmd.Flags().StringVar(&opts.branch, "branch", "", "branch to list with --remote (default branch when empty)")
	cmd.Flags().StringVar(&opts.since, "since", "", "only replay commits after this date (2006-01-02 or RFC3339)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "replay at most this many of the newest commits (0 for all)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", backfill.DefaultBatchSize, "commits per synthetic push")

	return cmd
}

func (o options) validate() error {
	if (o.repoPath == "") == (o.remote == "") {
		return fmt.Errorf("exactly one of --repo-path or --remote is required")
	}
	if o.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	if _, err := parseSince(o.since); err != nil {
		return err
	}
	return nil
}

func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --since %q, expected 2006-01-02 or RFC3339", value)
}

func run(cmd *cobra.Command, opts options) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	since, _ := parseSince(opts.since)
	githubClient := github.NewClient(cfg.GitHubToken, logger)

	fullName := opts.remote
	var commits []webhook.Commit
	if opts.repoPath != "" {
		fullName, err = github.LocalRemoteFullName(opts.repoPath)
		if err != nil {
			return fmt.Errorf("failed to identify repository: %w", err)
		}
		commits, err = github.ReadLocalCommits(opts.repoPath, since, opts.limit)
	} else {
		commits, err = githubClient.ListCommitMessages(ctx, opts.remote, opts.branch, since, opts.limit)
	}
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	cls, err := classifier.New(classifier.Config{
		Provider:        cfg.ClassifierProvider,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	// completions are stored but nobody listens in this process
	p := pipeline.New(db, cls, broadcast.Discard{}, logger, pipeline.Options{
		ClassifierTimeout: cfg.ClassifierTimeout,
	})

	logger.Info("replaying history",
		zap.String("repository", fullName),
		zap.Int("commits", len(commits)),
	)

	summary, err := backfill.NewReplayer(githubClient, p, opts.batchSize, logger).Replay(ctx, fullName, commits)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d commits, %d completed, %d already completed, %d unresolved, %d classifier failures\n",
		fullName, summary.Commits, summary.Completed, summary.AlreadyCompleted, summary.Unresolved, summary.ClassifierFailures)
	return nil
}

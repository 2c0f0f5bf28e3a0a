// Package pipeline runs the commits of a push delivery through
// classification, task resolution, completion and broadcast.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/broadcast"
	"github.com/clintrovert/taskhook/internal/classifier"
	"github.com/clintrovert/taskhook/internal/telemetry"
	"github.com/clintrovert/taskhook/internal/tracker"
	"github.com/clintrovert/taskhook/internal/webhook"
	"github.com/clintrovert/taskhook/pkg/types"
)

// DefaultClassifierTimeout bounds a single classifier call
const DefaultClassifierTimeout = 15 * time.Second

// Store is the persistence the pipeline needs
type Store interface {
	tracker.RepositoryStore
	tracker.TaskStore
}

// Summary counts what happened to the commits of one delivery
type Summary struct {
	Commits            int
	ClassifierFailures int
	Classified         int
	Unresolved         int
	Completed          int
	AlreadyCompleted   int
	WriteFailures      int
	RepositoryUpserted bool
}

// Pipeline processes push deliveries. It is safe for concurrent use; each
// delivery is processed sequentially, commit by commit.
type Pipeline struct {
	repositories *tracker.RepositoryResolver
	tasks        *tracker.TaskResolver
	machine      *tracker.StateMachine
	classifier   classifier.Classifier
	publisher    broadcast.Publisher
	timeout      time.Duration
	metrics      *telemetry.Metrics
	logger       *zap.Logger
}

// Options tunes a pipeline
type Options struct {
	ClassifierTimeout time.Duration
	Metrics           *telemetry.Metrics
}

// New creates a new pipeline
func New(
	store Store,
	cls classifier.Classifier,
	publisher broadcast.Publisher,
	logger *zap.Logger,
	opts Options,
) *Pipeline {
	timeout := opts.ClassifierTimeout
	if timeout <= 0 {
		timeout = DefaultClassifierTimeout
	}

	return &Pipeline{
		repositories: tracker.NewRepositoryResolver(store, logger),
		tasks:        tracker.NewTaskResolver(store),
		machine:      tracker.NewStateMachine(store),
		classifier:   cls,
		publisher:    publisher,
		timeout:      timeout,
		metrics:      opts.Metrics,
		logger:       logger,
	}
}

// ProcessPush upserts the pushing repository and then handles every commit in
// delivery order. Only unexpected store faults are returned; commits handled
// before the fault stay applied.
func (p *Pipeline) ProcessPush(ctx context.Context, push *webhook.PushEvent) (Summary, error) {
	summary := Summary{Commits: len(push.Commits)}
	logger := p.logger.With(
		zap.Int64("repository_id", push.RepositoryID),
		zap.String("repository", push.RepositoryName),
	)

	if _, err := p.repositories.Upsert(ctx, push.RepositoryID, push.RepositoryName); err != nil {
		logger.Error("failed to upsert repository, continuing", zap.Error(err))
	} else {
		summary.RepositoryUpserted = true
	}

	for i, commit := range push.Commits {
		if err := p.processCommit(ctx, logger.With(zap.Int("commit_index", i), zap.String("commit_id", commit.ID)), push.RepositoryID, commit, &summary); err != nil {
			return summary, err
		}
	}

	logger.Info("processed push",
		zap.Int("commits", summary.Commits),
		zap.Int("completed", summary.Completed),
		zap.Int("classifier_failures", summary.ClassifierFailures),
	)
	return summary, nil
}

func (p *Pipeline) processCommit(ctx context.Context, logger *zap.Logger, repositoryID int64, commit webhook.Commit, summary *Summary) error {
	p.record(func(m *telemetry.Metrics) { m.CommitsProcessed.Add(ctx, 1) })

	result, err := p.classify(ctx, commit.Message)
	if err != nil {
		summary.ClassifierFailures++
		p.record(func(m *telemetry.Metrics) { m.ClassifierFailures.Add(ctx, 1) })
		logger.Warn("classification failed, skipping commit", zap.Error(err))
		return nil
	}
	if !result.IsCompletion() {
		logger.Debug("commit completes no task", zap.String("task_id", result.TaskDisplayID))
		return nil
	}
	summary.Classified++

	task, err := p.tasks.Resolve(ctx, result.TaskDisplayID, repositoryID)
	switch {
	case errors.Is(err, tracker.ErrTaskNotFound), errors.Is(err, tracker.ErrTaskNotLinked):
		summary.Unresolved++
		logger.Info("no completable task for commit",
			zap.String("task_id", result.TaskDisplayID),
			zap.String("reason", err.Error()),
		)
		return nil
	case err != nil:
		return fmt.Errorf("failed to resolve task %s: %w", result.TaskDisplayID, err)
	}

	completed, applied, err := p.machine.Complete(ctx, task)
	if err != nil {
		summary.WriteFailures++
		logger.Error("failed to complete task, continuing", zap.String("task_id", task.DisplayID), zap.Error(err))
		return nil
	}
	if applied {
		summary.Completed++
		p.record(func(m *telemetry.Metrics) { m.TasksCompleted.Add(ctx, 1) })
		logger.Info("completed task", zap.String("task_id", completed.DisplayID))
	} else {
		summary.AlreadyCompleted++
		logger.Info("task already completed", zap.String("task_id", completed.DisplayID))
	}

	// the completion is durable at this point
	p.publisher.Publish(types.CompletionEvent{
		TaskID:        completed.DisplayID,
		Status:        completed.Status,
		CommitMessage: commit.Message,
		RepositoryID:  repositoryID,
		OccurredAt:    time.Now().UTC(),
	})
	return nil
}

type classifyResult struct {
	classification types.Classification
	err            error
}

// classify bounds one classifier call by the timeout even if the classifier
// ignores its context, and turns panics into errors.
func (p *Pipeline) classify(ctx context.Context, message string) (types.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan classifyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- classifyResult{err: fmt.Errorf("classifier panic: %v", r)}
			}
		}()
		c, err := p.classifier.Classify(ctx, message)
		done <- classifyResult{classification: c, err: err}
	}()

	select {
	case res := <-done:
		return res.classification, res.err
	case <-ctx.Done():
		return types.NoOp, fmt.Errorf("classifier timed out: %w", ctx.Err())
	}
}

func (p *Pipeline) record(fn func(*telemetry.Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}

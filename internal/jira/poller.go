package jira

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/pkg/types"
)

// IssueSource lists the project's issues as tasks
type IssueSource interface {
	ListProjectTasks(ctx context.Context) ([]ImportedTask, error)
}

// RepositoryLookup resolves a repository full name to its stable id
type RepositoryLookup interface {
	GetRepository(ctx context.Context, fullName string) (*types.Repository, error)
}

// TaskImporter persists imported tasks and their repositories
type TaskImporter interface {
	UpsertRepository(ctx context.Context, externalID int64, name string) (*types.Repository, error)
	UpsertTask(ctx context.Context, task *types.Task) (*types.Task, error)
}

// Poller periodically imports Jira issues into the task store
type Poller struct {
	source   IssueSource
	repos    RepositoryLookup
	store    TaskImporter
	logger   *zap.Logger
	interval time.Duration

	// full name (lower case) -> external id
	resolved map[string]int64
	mu       sync.RWMutex
}

// NewPoller creates a new Jira poller
func NewPoller(source IssueSource, repos RepositoryLookup, store TaskImporter, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		source:   source,
		repos:    repos,
		store:    store,
		logger:   logger,
		interval: interval,
		resolved: make(map[string]int64),
	}
}

// Start starts the polling loop
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial poll
	p.pollAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping jira poller")
			return
		case <-ticker.C:
			p.pollAndLog(ctx)
		}
	}
}

func (p *Poller) pollAndLog(ctx context.Context) {
	imported, err := p.Poll(ctx)
	if err != nil {
		p.logger.Error("failed to import jira tasks", zap.Error(err))
		return
	}
	p.logger.Info("imported jira tasks", zap.Int("count", imported))
}

// Poll performs a single import and returns the number of tasks upserted
func (p *Poller) Poll(ctx context.Context) (int, error) {
	tasks, err := p.source.ListProjectTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	imported := 0
	for _, it := range tasks {
		if ctx.Err() != nil {
			return imported, ctx.Err()
		}

		task := *it.Task
		links, ok := p.resolveRepositories(ctx, task.DisplayID, it.Repositories)
		if !ok {
			// links would be replaced by a partial set; retry on the next poll
			continue
		}
		task.LinkedRepositories = links

		if _, err := p.store.UpsertTask(ctx, &task); err != nil {
			p.logger.Error("failed to upsert task",
				zap.String("task_id", task.DisplayID),
				zap.Error(err),
			)
			continue
		}
		imported++
	}

	return imported, nil
}

func (p *Poller) resolveRepositories(ctx context.Context, displayID string, names []string) ([]int64, bool) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, ok := p.lookupResolved(name); ok {
			ids = append(ids, id)
			continue
		}

		repo, err := p.repos.GetRepository(ctx, name)
		if err != nil {
			p.logger.Warn("failed to resolve repository",
				zap.String("task_id", displayID),
				zap.String("repository", name),
				zap.Error(err),
			)
			return nil, false
		}
		if _, err := p.store.UpsertRepository(ctx, repo.ExternalID, repo.Name); err != nil {
			p.logger.Warn("failed to upsert repository",
				zap.String("repository", repo.Name),
				zap.Error(err),
			)
			return nil, false
		}

		p.markResolved(name, repo.ExternalID)
		ids = append(ids, repo.ExternalID)
	}
	return ids, true
}

func (p *Poller) lookupResolved(name string) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.resolved[strings.ToLower(name)]
	return id, ok
}

func (p *Poller) markResolved(name string, id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved[strings.ToLower(name)] = id
}

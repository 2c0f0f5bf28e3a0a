// Package tracker resolves repositories and tasks referenced by commits and
// applies the completion transition.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/store"
	"github.com/clintrovert/taskhook/pkg/types"
)

var (
	// ErrTaskNotFound means no task carries the classified display id
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotLinked means the task exists but the pushing repository may not complete it
	ErrTaskNotLinked = errors.New("task not linked to repository")
)

// RepositoryStore persists repositories
type RepositoryStore interface {
	UpsertRepository(ctx context.Context, externalID int64, name string) (*types.Repository, error)
}

// TaskStore reads tasks and writes the completion transition
type TaskStore interface {
	GetTaskByDisplayID(ctx context.Context, displayID string) (*types.Task, error)
	CompleteTask(ctx context.Context, taskID string) (time.Time, bool, error)
}

// RepositoryResolver records the repositories that deliver pushes
type RepositoryResolver struct {
	store  RepositoryStore
	logger *zap.Logger
}

// NewRepositoryResolver creates a new repository resolver
func NewRepositoryResolver(store RepositoryStore, logger *zap.Logger) *RepositoryResolver {
	return &RepositoryResolver{store: store, logger: logger}
}

// Upsert creates the repository or refreshes its name
func (r *RepositoryResolver) Upsert(ctx context.Context, externalID int64, name string) (*types.Repository, error) {
	repo, err := r.store.UpsertRepository(ctx, externalID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert repository %d: %w", externalID, err)
	}

	r.logger.Debug("upserted repository",
		zap.Int64("repository_id", externalID),
		zap.String("repository", name),
	)
	return repo, nil
}

// TaskResolver maps a classified display id to a task the repository may complete
type TaskResolver struct {
	store TaskStore
}

// NewTaskResolver creates a new task resolver
func NewTaskResolver(store TaskStore) *TaskResolver {
	return &TaskResolver{store: store}
}

// Resolve returns the task with displayID when it is linked to the repository.
// ErrTaskNotFound and ErrTaskNotLinked are expected outcomes, not faults.
func (r *TaskResolver) Resolve(ctx context.Context, displayID string, externalRepositoryID int64) (*types.Task, error) {
	task, err := r.store.GetTaskByDisplayID(ctx, displayID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up task %s: %w", displayID, err)
	}

	if !task.IsLinkedTo(externalRepositoryID) {
		return nil, ErrTaskNotLinked
	}
	return task, nil
}

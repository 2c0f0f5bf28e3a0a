package tracker

import (
	"context"
	"fmt"

	"github.com/clintrovert/taskhook/pkg/types"
)

// CanTransition reports whether the pipeline may move a task from one status
// to another. Completion from a non-terminal status is the only edge.
func CanTransition(from, to types.TaskStatus) bool {
	return to == types.StatusCompleted && !from.IsTerminal()
}

// StateMachine applies the completion transition
type StateMachine struct {
	store TaskStore
}

// NewStateMachine creates a new state machine over the task store
func NewStateMachine(store TaskStore) *StateMachine {
	return &StateMachine{store: store}
}

// Complete moves the task to Completed. A task that is already Completed is
// returned unchanged; applied reports whether this call performed the write.
func (m *StateMachine) Complete(ctx context.Context, task *types.Task) (*types.Task, bool, error) {
	if !CanTransition(task.Status, types.StatusCompleted) {
		return task, false, nil
	}

	updatedAt, applied, err := m.store.CompleteTask(ctx, task.ID)
	if err != nil {
		return task, false, fmt.Errorf("failed to complete task %s: %w", task.DisplayID, err)
	}

	completed := *task
	completed.Status = types.StatusCompleted
	if applied {
		completed.UpdatedAt = updatedAt
	}
	return &completed, applied, nil
}

package mirror

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/activities"
	"github.com/clintrovert/taskhook/internal/broadcast"
	"github.com/clintrovert/taskhook/pkg/types"
)

// subscriptionBuffer is larger than the default so bursts of completions
// from a single push are not dropped while a workflow start is in flight.
const subscriptionBuffer = 256

// WorkflowStarter starts the durable mirror for one completion
type WorkflowStarter interface {
	StartMirrorWorkflow(ctx context.Context, req activities.MirrorRequest) (string, bool, error)
}

// Orchestrator turns completion broadcasts into mirror workflows
type Orchestrator struct {
	hub     *broadcast.Hub
	starter WorkflowStarter
	logger  *zap.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(hub *broadcast.Hub, starter WorkflowStarter, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		hub:     hub,
		starter: starter,
		logger:  logger,
	}
}

// Start subscribes to the hub and processes events until ctx is done
func (o *Orchestrator) Start(ctx context.Context) error {
	sub := o.hub.Subscribe(subscriptionBuffer)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := o.processEvent(ctx, event); err != nil {
				o.logger.Error("failed to mirror completion",
					zap.String("task_id", event.TaskID),
					zap.Error(err),
				)
			}
		}
	}
}

// processEvent starts the mirror workflow for a single event
func (o *Orchestrator) processEvent(ctx context.Context, event types.CompletionEvent) error {
	if event.Status != types.StatusCompleted {
		return nil
	}

	workflowID, started, err := o.starter.StartMirrorWorkflow(ctx, activities.MirrorRequest{
		TaskID:        event.TaskID,
		CommitMessage: event.CommitMessage,
		RepositoryID:  event.RepositoryID,
	})
	if err != nil {
		return fmt.Errorf("failed to start workflow: %w", err)
	}

	if !started {
		o.logger.Debug("completion already mirrored",
			zap.String("task_id", event.TaskID),
			zap.String("workflow_id", workflowID),
		)
		return nil
	}

	o.logger.Info("started mirror workflow for task",
		zap.String("task_id", event.TaskID),
		zap.String("workflow_id", workflowID),
	)
	return nil
}

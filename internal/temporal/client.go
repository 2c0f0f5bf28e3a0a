package temporal

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/internal/activities"
	"github.com/clintrovert/taskhook/internal/temporal/workflows"
)

// Client wraps Temporal client functionality
type Client struct {
	temporalClient client.Client
	logger         *zap.Logger
	taskQueue      string
}

// NewClient creates a new Temporal client
func NewClient(address, namespace, taskQueue string, logger *zap.Logger) (*Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  address,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}

	return NewClientFrom(c, taskQueue, logger), nil
}

// NewClientFrom wraps an existing SDK client
func NewClientFrom(c client.Client, taskQueue string, logger *zap.Logger) *Client {
	return &Client{
		temporalClient: c,
		logger:         logger,
		taskQueue:      taskQueue,
	}
}

// StartMirrorWorkflow starts the completion mirror for a task. Each task is
// mirrored at most once: started is false when a workflow with the same id
// already ran or is running.
func (c *Client) StartMirrorWorkflow(ctx context.Context, req activities.MirrorRequest) (string, bool, error) {
	workflowID := workflows.MirrorWorkflowID(req.TaskID)

	workflowOptions := client.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                c.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	we, err := c.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.MirrorCompletionWorkflow, workflows.MirrorInput{Request: req})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return workflowID, false, nil
		}
		return "", false, fmt.Errorf("failed to start workflow: %w", err)
	}

	c.logger.Info("started workflow",
		zap.String("workflow_id", we.GetID()),
		zap.String("run_id", we.GetRunID()),
		zap.String("task_id", req.TaskID),
	)

	return we.GetID(), true, nil
}

// Close closes the Temporal client
func (c *Client) Close() {
	c.temporalClient.Close()
}

package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/clintrovert/taskhook/internal/activities"
)

// MirrorWorkflowIDPrefix prefixes the per-task workflow id
const MirrorWorkflowIDPrefix = "mirror-completion-"

// MirrorWorkflowID returns the workflow id for a task's completion mirror
func MirrorWorkflowID(taskID string) string {
	return MirrorWorkflowIDPrefix + taskID
}

// MirrorCompletionWorkflow mirrors a task completion into Jira
func MirrorCompletionWorkflow(ctx workflow.Context, input MirrorInput) (*activities.MirrorResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting completion mirror workflow", "task_id", input.Request.TaskID)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *activities.JiraActivities
	var result activities.MirrorResult
	err := workflow.ExecuteActivity(ctx, a.MirrorCompletion, input.Request).Get(ctx, &result)
	if err != nil {
		logger.Error("failed to mirror completion", "task_id", input.Request.TaskID, "error", err)
		return nil, err
	}

	logger.Info("completion mirror workflow completed",
		"task_id", input.Request.TaskID,
		"transitioned", result.Transitioned,
	)
	return &result, nil
}
